package service

import (
	"context"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"

	"github.com/google/uuid"
)

// SlotQuery selects the mirrored events that can block a booking slot.
type SlotQuery struct {
	UserID    uuid.UUID
	ServiceID *uuid.UUID
	Start     time.Time
	End       time.Time
	// ExcludeBookingID ignores the mirrors of the booking being moved.
	ExcludeBookingID *uuid.UUID
}

// AvailabilityService answers overlap questions from the local event mirror
// without calling providers.
type AvailabilityService interface {
	Conflicts(ctx context.Context, actor security.Actor, q SlotQuery) ([]entity.CalendarEvent, error)
	FreeGaps(ctx context.Context, actor security.Actor, q SlotQuery, minMinutes int) ([]dto.TimeSlot, error)
	EnsureSlotFree(ctx context.Context, actor security.Actor, q SlotQuery) error
}

type availabilityService struct {
	events repository.EventRepository
	guard  provider.Guard
	finder *SlotFinder
}

func NewAvailabilityService(events repository.EventRepository, guard provider.Guard) AvailabilityService {
	return &availabilityService{events: events, guard: guard, finder: NewSlotFinder()}
}

func (s *availabilityService) Conflicts(ctx context.Context, actor security.Actor, q SlotQuery) ([]entity.CalendarEvent, error) {
	if !q.End.After(q.Start) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end must be after start", nil)
	}
	if ok, err := s.guard.ReadOwner(actor, q.UserID, "Conflicts"); !ok {
		return []entity.CalendarEvent{}, err
	}

	events, err := s.events.ListBlocking(ctx, repository.BlockingFilter{
		UserID:           q.UserID,
		ServiceID:        q.ServiceID,
		From:             q.Start,
		To:               q.End,
		ExcludeBookingID: q.ExcludeBookingID,
	})
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar events", err)
	}

	// The same booking can be mirrored into several calendars.
	seen := make(map[string]bool, len(events))
	out := make([]entity.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if !ev.BlocksBooking || ev.IsAllDay || !entity.Overlaps(ev.StartsAt, ev.EndsAt, q.Start, q.End) {
			continue
		}
		key := ev.ExternalEventID + "|" + ev.IntegrationID.String()
		if ev.BookingID != nil {
			key = "booking|" + ev.BookingID.String()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ev)
	}
	return out, nil
}

func (s *availabilityService) FreeGaps(ctx context.Context, actor security.Actor, q SlotQuery, minMinutes int) ([]dto.TimeSlot, error) {
	if !q.End.After(q.Start) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end must be after start", nil)
	}
	if ok, err := s.guard.ReadOwner(actor, q.UserID, "FreeGaps"); !ok {
		if err != nil {
			return nil, err
		}
		return []dto.TimeSlot{{Start: q.Start, End: q.End}}, nil
	}

	events, err := s.Conflicts(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	busy := make([]dto.TimeSlot, 0, len(events))
	for _, ev := range events {
		busy = append(busy, dto.TimeSlot{Start: ev.StartsAt, End: ev.EndsAt})
	}
	return s.finder.FreeGaps(q.Start, q.End, busy, minMinutes), nil
}

// EnsureSlotFree rejects a slot overlapping any blocking event with a
// DATA_CONFLICT that lists the conflicting titles.
func (s *availabilityService) EnsureSlotFree(ctx context.Context, actor security.Actor, q SlotQuery) error {
	conflicts, err := s.Conflicts(ctx, actor, q)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		return nil
	}

	titles := make([]string, 0, len(conflicts))
	for _, ev := range conflicts {
		title := ev.Title
		if title == "" {
			title = "Busy"
		}
		titles = append(titles, title)
	}
	logger.Info("AvailabilityService:EnsureSlotFree:Conflict", "user_id", q.UserID.String(), "conflicts", len(conflicts))
	return errors.NewAppError(errors.ErrDataConflict,
		"the requested time overlaps: "+strings.Join(titles, ", "), nil).
		WithDetails(map[string]any{"conflicts": titles})
}
