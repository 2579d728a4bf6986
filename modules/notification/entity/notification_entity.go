package entity

import (
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/entity"

	"github.com/google/uuid"
)

const (
	TypeIntegrationDisabled = "calendar_integration_disabled"
	TypeBookingReminder     = "booking_reminder"
)

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCancelled = "cancelled"
)

type Notification struct {
	UserID       uuid.UUID    `db:"user_id" json:"user_id"`
	BookingID    *uuid.UUID   `db:"booking_id" json:"booking_id,omitempty"`
	Title        string       `db:"title" json:"title"`
	Message      string       `db:"message" json:"message"`
	Type         string       `db:"type" json:"type"`
	Data         entity.JSONB `db:"data" json:"data"`
	Status       string       `db:"status" json:"status"`
	ScheduledFor *time.Time   `db:"scheduled_for" json:"scheduled_for,omitempty"`
	IsRead       bool         `db:"is_read" json:"is_read"`
	entity.BaseEntity
}

type PaginatedNotificationEntity = entity.Pagination[Notification]
