package service

import (
	"context"
	"sync"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/repository"
	calendarService "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"

	"github.com/google/uuid"
)

// BookingNotifier is the notification domain seen from bookings.
type BookingNotifier interface {
	CancelForBooking(ctx context.Context, bookingID uuid.UUID) error
	RescheduleForBooking(ctx context.Context, bookingID uuid.UUID, startsAt time.Time) error
}

type BookingService interface {
	HandleBookingChanged(ctx context.Context, bookingID uuid.UUID, action string) error
	PushToCalendars(ctx context.Context, actor security.Actor, bookingID uuid.UUID) (*calendarService.SyncResult, error)
	RemoveFromCalendars(ctx context.Context, actor security.Actor, bookingID uuid.UUID) (*calendarService.SyncResult, error)
	CheckSlot(ctx context.Context, actor security.Actor, q calendarService.SlotQuery) error
}

type bookingService struct {
	repo         repository.BookingRepository
	sync         calendarService.SyncService
	availability calendarService.AvailabilityService
	notifier     BookingNotifier

	// notifications tracks fire-and-forget notification calls.
	notifications sync.WaitGroup
}

func NewBookingService(
	repo repository.BookingRepository,
	sync calendarService.SyncService,
	availability calendarService.AvailabilityService,
	notifier BookingNotifier,
) BookingService {
	return &bookingService{
		repo:         repo,
		sync:         sync,
		availability: availability,
		notifier:     notifier,
	}
}

func (s *bookingService) load(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load booking", err)
	}
	if b == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "booking not found", nil)
	}
	return b, nil
}

// HandleBookingChanged mirrors a booking change into the owner's calendars and
// then updates the booking's notifications. Calendar failures are recorded per
// integration and never fail the job.
func (s *bookingService) HandleBookingChanged(ctx context.Context, bookingID uuid.UUID, action string) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b == nil {
		logger.Warn("BookingService:HandleBookingChanged:NotFound", "booking_id", bookingID.String())
		return nil
	}

	actor := security.SystemActor()
	if action == queue.BookingActionCancelled || b.Status == entity.BookingStatusCancelled {
		result := s.sync.RemoveBookingFromCalendars(ctx, actor, b)
		logger.Info("BookingService:HandleBookingChanged:Removed",
			"booking_id", bookingID.String(), "synced", result.Synced, "failed", result.Failed)
		s.notify(ctx, "cancel", bookingID, func(ctx context.Context) error {
			return s.notifier.CancelForBooking(ctx, bookingID)
		})
		return nil
	}

	result := s.sync.PushBookingToCalendars(ctx, actor, b)
	logger.Info("BookingService:HandleBookingChanged:Pushed",
		"booking_id", bookingID.String(), "action", action, "synced", result.Synced, "failed", result.Failed)
	if action == queue.BookingActionRescheduled {
		startsAt := b.StartsAt
		s.notify(ctx, "reschedule", bookingID, func(ctx context.Context) error {
			return s.notifier.RescheduleForBooking(ctx, bookingID, startsAt)
		})
	}
	return nil
}

// notify runs fn in the background; its failure is only logged.
func (s *bookingService) notify(ctx context.Context, op string, bookingID uuid.UUID, fn func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		if err := fn(ctx); err != nil {
			logger.Warn("BookingService:Notify:Error", "op", op, "booking_id", bookingID.String(), "error", err)
		}
	}()
}

func (s *bookingService) PushToCalendars(ctx context.Context, actor security.Actor, bookingID uuid.UUID) (*calendarService.SyncResult, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !security.CanManageIntegration(actor, b.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to sync this booking", nil)
	}
	if b.Status == entity.BookingStatusCancelled {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "cancelled bookings cannot be pushed to calendars", nil)
	}
	return s.sync.PushBookingToCalendars(ctx, actor, b), nil
}

func (s *bookingService) RemoveFromCalendars(ctx context.Context, actor security.Actor, bookingID uuid.UUID) (*calendarService.SyncResult, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !security.CanManageIntegration(actor, b.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to sync this booking", nil)
	}
	return s.sync.RemoveBookingFromCalendars(ctx, actor, b), nil
}

// CheckSlot rejects a slot that overlaps a blocking calendar event.
func (s *bookingService) CheckSlot(ctx context.Context, actor security.Actor, q calendarService.SlotQuery) error {
	return s.availability.EnsureSlotFree(ctx, actor, q)
}
