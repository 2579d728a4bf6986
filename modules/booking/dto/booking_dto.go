package dto

import (
	"github.com/google/uuid"
)

// CheckSlotRequest asks whether a booking may be placed in [start, end).
type CheckSlotRequest struct {
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	ServiceID *uuid.UUID `json:"service_id,omitempty"`
	Start     string     `json:"start"` // RFC3339
	End       string     `json:"end"`   // RFC3339
	// ExcludeBookingID ignores the booking being rescheduled.
	ExcludeBookingID *uuid.UUID `json:"exclude_booking_id,omitempty"`
}

type CheckSlotResponse struct {
	Available bool `json:"available"`
}
