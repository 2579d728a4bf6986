package entity

import (
	"time"

	calendarEntity "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
)

// FlowContext is the server-side half of an OAuth authorization in progress.
// It lives in the cache under its nonce until the callback consumes it.
type FlowContext struct {
	Nonce     string                      `json:"nonce"`
	UserID    uuid.UUID                   `json:"user_id"`
	ServiceID *uuid.UUID                  `json:"service_id,omitempty"`
	Provider  calendarEntity.ProviderType `json:"provider"`
	// InitiatedBy differs from UserID when an administrator connects on a user's behalf.
	InitiatedBy uuid.UUID `json:"initiated_by"`
	ClientIP    string    `json:"client_ip,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (f *FlowContext) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}
