package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const eventColumns = `id, integration_id, booking_id, external_event_id, title, starts_at, ends_at,
	is_all_day, blocks_booking, block_type, last_synced_at, created_at, updated_at`

// BlockingFilter selects mirrored events that make a user's time unavailable.
type BlockingFilter struct {
	UserID    uuid.UUID
	ServiceID *uuid.UUID
	From      time.Time
	To        time.Time
	// ExcludeBookingID skips the mirrors of a booking being rescheduled.
	ExcludeBookingID *uuid.UUID
}

type EventRepository interface {
	Upsert(ctx context.Context, ev *entity.CalendarEvent) error
	FindByBooking(ctx context.Context, integrationID, bookingID uuid.UUID) (*entity.CalendarEvent, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]entity.CalendarEvent, error)
	ListBookingMirrors(ctx context.Context, integrationID uuid.UUID) ([]entity.CalendarEvent, error)
	ListBlocking(ctx context.Context, f BlockingFilter) ([]entity.CalendarEvent, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMissingExternal(ctx context.Context, integrationID uuid.UUID, from, to time.Time, keep []string) (int64, error)
	PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventRepository struct {
	db database.IDatabase
}

func NewEventRepository(db database.IDatabase) EventRepository {
	return &eventRepository{db: db}
}

// Upsert is keyed by (integration_id, external_event_id) so re-syncing the
// same external event updates the existing mirror. A pulled copy of an event
// we pushed keeps its booking link.
func (r *eventRepository) Upsert(ctx context.Context, ev *entity.CalendarEvent) error {
	query := `
		INSERT INTO calendar_events (
			integration_id, booking_id, external_event_id, title, starts_at, ends_at,
			is_all_day, blocks_booking, block_type, last_synced_at
		) VALUES (
			:integration_id, :booking_id, :external_event_id, :title, :starts_at, :ends_at,
			:is_all_day, :blocks_booking, :block_type, :last_synced_at
		)
		ON CONFLICT ON CONSTRAINT calendar_events_unique_external DO UPDATE SET
			booking_id = COALESCE(EXCLUDED.booking_id, calendar_events.booking_id),
			title = EXCLUDED.title,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			is_all_day = EXCLUDED.is_all_day,
			blocks_booking = EXCLUDED.blocks_booking,
			block_type = CASE
				WHEN EXCLUDED.booking_id IS NULL AND calendar_events.booking_id IS NOT NULL THEN calendar_events.block_type
				ELSE EXCLUDED.block_type
			END,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, ev)
	if err != nil {
		logger.Error("EventRepository:Upsert:Error", "error", err, "integration_id", ev.IntegrationID.String())
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	}
	return rows.Err()
}

func (r *eventRepository) FindByBooking(ctx context.Context, integrationID, bookingID uuid.UUID) (*entity.CalendarEvent, error) {
	var ev entity.CalendarEvent
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE integration_id = $1 AND booking_id = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &ev, query, integrationID, bookingID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("EventRepository:FindByBooking:Error", "error", err)
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE booking_id = $1`
	if err := r.db.SelectContext(ctx, &out, query, bookingID); err != nil {
		logger.Error("EventRepository:ListByBooking:Error", "error", err)
		return nil, err
	}
	return out, nil
}

// ListBookingMirrors returns the events pushed for bookings on one integration.
func (r *eventRepository) ListBookingMirrors(ctx context.Context, integrationID uuid.UUID) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE integration_id = $1 AND booking_id IS NOT NULL`
	if err := r.db.SelectContext(ctx, &out, query, integrationID); err != nil {
		logger.Error("EventRepository:ListBookingMirrors:Error", "error", err)
		return nil, err
	}
	return out, nil
}

// ListBlocking returns timed, blocking mirrors overlapping [From, To) on the
// user's active integrations that auto-block. Service-scoped integrations only
// count when ServiceID names their service, as in AppliesToService.
func (r *eventRepository) ListBlocking(ctx context.Context, f BlockingFilter) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	query := `
		SELECT e.id, e.integration_id, e.booking_id, e.external_event_id, e.title, e.starts_at, e.ends_at,
			e.is_all_day, e.blocks_booking, e.block_type, e.last_synced_at, e.created_at, e.updated_at
		FROM calendar_events e
		JOIN calendar_integrations i ON i.id = e.integration_id
		WHERE i.user_id = $1
		AND i.is_active
		AND i.auto_block_external_events
		AND (i.service_id IS NULL OR i.service_id = $2::uuid)
		AND e.blocks_booking
		AND NOT e.is_all_day
		AND e.starts_at < $4
		AND e.ends_at > $3
		AND ($5::uuid IS NULL OR e.booking_id IS NULL OR e.booking_id <> $5)
		ORDER BY e.starts_at, e.ends_at
	`
	if err := r.db.SelectContext(ctx, &out, query, f.UserID, f.ServiceID, f.From, f.To, f.ExcludeBookingID); err != nil {
		logger.Error("EventRepository:ListBlocking:Error", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *eventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
}

// DeleteMissingExternal drops pulled mirrors inside the window whose external
// id was not seen in the latest listing.
func (r *eventRepository) DeleteMissingExternal(ctx context.Context, integrationID uuid.UUID, from, to time.Time, keep []string) (int64, error) {
	query := `
		DELETE FROM calendar_events
		WHERE integration_id = $1
		AND block_type = $2
		AND starts_at < $4
		AND ends_at > $3
		AND NOT (external_event_id = ANY($5))
	`
	if keep == nil {
		keep = []string{}
	}
	res, err := r.db.ExecResultContext(ctx, query, integrationID, entity.BlockTypeExternal, from, to, pq.Array(keep))
	if err != nil {
		logger.Error("EventRepository:DeleteMissingExternal:Error", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}

func (r *eventRepository) PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecResultContext(ctx, `DELETE FROM calendar_events WHERE ends_at < $1`, cutoff)
	if err != nil {
		logger.Error("EventRepository:PurgeEndedBefore:Error", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}
