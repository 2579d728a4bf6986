package dto

import (
	"time"

	"github.com/google/uuid"
)

// ========== OAuth DTOs ==========

type InitiateOAuthRequest struct {
	Provider  string `param:"provider"`
	ServiceID string `query:"service_id"`
	UserID    string `query:"user_id"`
}

type InitiateOAuthResponse struct {
	AuthorizationURL string    `json:"authorization_url"`
	State            string    `json:"state"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type OAuthCallbackRequest struct {
	Provider         string `param:"provider"`
	Code             string `query:"code"`
	State            string `query:"state"`
	Error            string `query:"error"`
	ErrorDescription string `query:"error_description"`
}

// ConnectFeedRequest connects a read-only iCal feed.
type ConnectFeedRequest struct {
	URL       string     `json:"url"`
	ServiceID *uuid.UUID `json:"service_id,omitempty"`
	// UserID defaults to the caller.
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

// ========== Integration DTOs ==========

type SyncSettingsResponse struct {
	SyncFrequencyMinutes int    `json:"sync_frequency_minutes"`
	EventTitleTemplate   string `json:"event_title_template"`
	ReminderMinutes      []int  `json:"reminder_minutes"`
	SyncPastDays         int    `json:"sync_past_days"`
	SyncFutureDays       int    `json:"sync_future_days"`
	Color                string `json:"color,omitempty"`
}

type IntegrationResponse struct {
	ID                      uuid.UUID            `json:"id"`
	UserID                  uuid.UUID            `json:"user_id"`
	ServiceID               *uuid.UUID           `json:"service_id,omitempty"`
	Provider                string               `json:"provider"`
	CalendarID              string               `json:"calendar_id"`
	CalendarName            string               `json:"calendar_name"`
	CalendarTimezone        string               `json:"calendar_timezone"`
	IsActive                bool                 `json:"is_active"`
	SyncBookings            bool                 `json:"sync_bookings"`
	SyncAvailability        bool                 `json:"sync_availability"`
	AutoBlockExternalEvents bool                 `json:"auto_block_external_events"`
	SyncSettings            SyncSettingsResponse `json:"sync_settings"`
	LastSyncAt              *time.Time           `json:"last_sync_at,omitempty"`
	SyncErrorCount          int                  `json:"sync_error_count"`
	LastSyncError           *string              `json:"last_sync_error,omitempty"`
	TokenExpiresAt          *time.Time           `json:"token_expires_at,omitempty"`
	Healthy                 bool                 `json:"healthy"`
	TokenExpired            bool                 `json:"token_expired"`
	NextSyncAt              time.Time            `json:"next_sync_at"`
	CreatedAt               time.Time            `json:"created_at"`
	UpdatedAt               time.Time            `json:"updated_at"`
}

type IntegrationListResponse struct {
	Integrations []IntegrationResponse `json:"integrations"`
}

type SyncSettingsRequest struct {
	SyncFrequencyMinutes *int    `json:"sync_frequency_minutes,omitempty"`
	EventTitleTemplate   *string `json:"event_title_template,omitempty"`
	ReminderMinutes      []int   `json:"reminder_minutes,omitempty"`
	SyncPastDays         *int    `json:"sync_past_days,omitempty"`
	SyncFutureDays       *int    `json:"sync_future_days,omitempty"`
	Color                *string `json:"color,omitempty"`
}

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	SyncBookings            *bool                `json:"sync_bookings,omitempty"`
	SyncAvailability        *bool                `json:"sync_availability,omitempty"`
	AutoBlockExternalEvents *bool                `json:"auto_block_external_events,omitempty"`
	IsActive                *bool                `json:"is_active,omitempty"`
	SyncSettings            *SyncSettingsRequest `json:"sync_settings,omitempty"`
}

// ========== Sync DTOs ==========

type SyncResultResponse struct {
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

type SyncRunResponse struct {
	ID             uuid.UUID `json:"id"`
	Status         string    `json:"status"`
	EventsSeen     int       `json:"events_seen"`
	EventsUpserted int       `json:"events_upserted"`
	Error          *string   `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

type SyncNowResponse struct {
	Result SyncResultResponse `json:"result"`
	Run    SyncRunResponse    `json:"run"`
}

type EnqueueSyncResponse struct {
	Enqueued int `json:"enqueued"`
}

// ========== Availability DTOs ==========

type AvailabilityRequest struct {
	Start     string `query:"start"` // RFC3339
	End       string `query:"end"`   // RFC3339
	ServiceID string `query:"service_id"`
}

type ConflictResponse struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	Provider      string    `json:"provider"`
	Title         string    `json:"title,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

type AvailabilityResponse struct {
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

type FreeGapsRequest struct {
	Start      string `query:"start"` // RFC3339
	End        string `query:"end"`   // RFC3339
	MinMinutes int    `query:"min_minutes"`
	ServiceID  string `query:"service_id"`
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type FreeGapsResponse struct {
	Gaps []TimeSlot `json:"gaps"`
}
