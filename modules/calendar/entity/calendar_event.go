package entity

import (
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/entity"

	"github.com/google/uuid"
)

type BlockType string

const (
	// BlockTypeBooking rows mirror an internal booking pushed to the calendar.
	BlockTypeBooking  BlockType = "booking"
	// BlockTypeExternal rows mirror an external busy interval pulled in.
	BlockTypeExternal BlockType = "external"
)

type CalendarEvent struct {
	entity.BaseEntity
	IntegrationID   uuid.UUID  `db:"integration_id" json:"integration_id"`
	BookingID       *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	ExternalEventID string     `db:"external_event_id" json:"external_event_id"`
	Title           string     `db:"title" json:"title"`
	StartsAt        time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt          time.Time  `db:"ends_at" json:"ends_at"`
	IsAllDay        bool       `db:"is_all_day" json:"is_all_day"`
	BlocksBooking   bool       `db:"blocks_booking" json:"blocks_booking"`
	BlockType       BlockType  `db:"block_type" json:"block_type"`
	LastSyncedAt    time.Time  `db:"last_synced_at" json:"last_synced_at"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}

type SyncRunStatus string

const (
	SyncRunSucceeded SyncRunStatus = "succeeded"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncRun records one pull of an integration.
type SyncRun struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	IntegrationID  uuid.UUID     `db:"integration_id" json:"integration_id"`
	Status         SyncRunStatus `db:"status" json:"status"`
	EventsSeen     int           `db:"events_seen" json:"events_seen"`
	EventsUpserted int           `db:"events_upserted" json:"events_upserted"`
	Error          *string       `db:"error" json:"error,omitempty"`
	StartedAt      time.Time     `db:"started_at" json:"started_at"`
	FinishedAt     time.Time     `db:"finished_at" json:"finished_at"`
}
