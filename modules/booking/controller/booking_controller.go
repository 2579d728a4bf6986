package controller

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/controller"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/mapper"
	calendarService "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type BookingController struct {
	controller.BaseController
	bookings service.BookingService
}

func NewBookingController(bookings service.BookingService) *BookingController {
	return &BookingController{
		BaseController: controller.NewBaseController(),
		bookings:       bookings,
	}
}

// PushToCalendars syncs one booking to the owner's calendars and reports per-provider results.
func (c *BookingController) PushToCalendars(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid booking id")
	}

	result, err := c.bookings.PushToCalendars(ctx.Request().Context(), actor, id)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, mapper.ToSyncResultResponse(result.Synced, result.Failed, result.Errors), "Booking synced to calendars")
}

func (c *BookingController) RemoveFromCalendars(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid booking id")
	}

	result, err := c.bookings.RemoveFromCalendars(ctx.Request().Context(), actor, id)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, mapper.ToSyncResultResponse(result.Synced, result.Failed, result.Errors), "Booking removed from calendars")
}

// CheckSlot answers 200 when the slot is free and 409 with the conflicting titles otherwise.
func (c *BookingController) CheckSlot(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.CheckSlotRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	start, end, result := validator.ParseWindow(req.Start, req.End)
	if result.HasError() {
		return c.ValidationError("Invalid time window", result)
	}

	userID := actor.UserID
	if req.UserID != nil {
		userID = *req.UserID
	}
	err := c.bookings.CheckSlot(ctx.Request().Context(), actor, calendarService.SlotQuery{
		UserID:           userID,
		ServiceID:        req.ServiceID,
		Start:            start,
		End:              end,
		ExcludeBookingID: req.ExcludeBookingID,
	})
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.CheckSlotResponse{Available: true}, "Slot is available")
}
