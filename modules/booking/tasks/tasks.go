package tasks

import (
	"context"

	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/service"

	"github.com/hibiken/asynq"
)

type Handler struct {
	bookings service.BookingService
}

func NewHandler(bookings service.BookingService) *Handler {
	return &Handler{bookings: bookings}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeBookingChanged, h.HandleBookingChanged)
}

func (h *Handler) HandleBookingChanged(ctx context.Context, t *asynq.Task) error {
	p, err := queue.DecodeBookingChanged(t)
	if err != nil {
		return err
	}
	logger.Debug("BookingTasks:HandleBookingChanged:Start", "booking_id", p.BookingID.String(), "action", p.Action)
	return h.bookings.HandleBookingChanged(ctx, p.BookingID, p.Action)
}
