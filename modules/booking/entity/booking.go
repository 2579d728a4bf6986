package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is owned by the booking domain; the calendar engine only reads it.
type Booking struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	UserID            uuid.UUID     `db:"user_id" json:"user_id"`
	ServiceID         *uuid.UUID    `db:"service_id" json:"service_id,omitempty"`
	ServiceName       string        `db:"service_name" json:"service_name"`
	StartsAt          time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt            time.Time     `db:"ends_at" json:"ends_at"`
	ClientName        string        `db:"client_name" json:"client_name"`
	ClientEmail       string        `db:"client_email" json:"client_email"`
	ClientPhone       string        `db:"client_phone" json:"client_phone"`
	Location          string        `db:"location" json:"location"`
	Reference         string        `db:"reference" json:"reference"`
	AddonsDescription string        `db:"addons_description" json:"addons_description"`
	Status            BookingStatus `db:"status" json:"status"`
}

func (Booking) TableName() string {
	return "bookings"
}
