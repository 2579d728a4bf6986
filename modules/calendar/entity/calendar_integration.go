package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/entity"

	"github.com/google/uuid"
)

type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderICal   ProviderType = "ical"
)

func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderICal:
		return true
	}
	return false
}

func (p ProviderType) String() string {
	return string(p)
}

// SyncSettings is stored as JSONB on the integration row.
type SyncSettings struct {
	SyncFrequencyMinutes int    `json:"sync_frequency_minutes"`
	EventTitleTemplate   string `json:"event_title_template"`
	ReminderMinutes      []int  `json:"reminder_minutes"`
	SyncPastDays         int    `json:"sync_past_days"`
	SyncFutureDays       int    `json:"sync_future_days"`
	Color                string `json:"color,omitempty"`
}

func (s SyncSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *SyncSettings) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, s)
}

// CalendarIntegration links a user (optionally scoped to one service) to an external calendar.
type CalendarIntegration struct {
	entity.BaseEntity
	UserID                  uuid.UUID    `db:"user_id" json:"user_id"`
	ServiceID               *uuid.UUID   `db:"service_id" json:"service_id,omitempty"`
	Provider                ProviderType `db:"provider" json:"provider"`
	CalendarID              string       `db:"calendar_id" json:"calendar_id"`
	CalendarName            string       `db:"calendar_name" json:"calendar_name"`
	CalendarTimezone        string       `db:"calendar_timezone" json:"calendar_timezone"`
	AccessToken             string       `db:"access_token" json:"-"`
	RefreshToken            *string      `db:"refresh_token" json:"-"`
	TokenExpiresAt          *time.Time   `db:"token_expires_at" json:"token_expires_at,omitempty"`
	IsActive                bool         `db:"is_active" json:"is_active"`
	SyncBookings            bool         `db:"sync_bookings" json:"sync_bookings"`
	SyncAvailability        bool         `db:"sync_availability" json:"sync_availability"`
	AutoBlockExternalEvents bool         `db:"auto_block_external_events" json:"auto_block_external_events"`
	SyncSettings            SyncSettings `db:"sync_settings" json:"sync_settings"`
	LastSyncAt              *time.Time   `db:"last_sync_at" json:"last_sync_at,omitempty"`
	SyncErrorCount          int          `db:"sync_error_count" json:"sync_error_count"`
	LastSyncError           *string      `db:"last_sync_error" json:"last_sync_error,omitempty"`
}

func (CalendarIntegration) TableName() string {
	return "calendar_integrations"
}

// AppliesToService reports whether bookings for serviceID should reach this calendar.
// An integration without a service applies to every service.
func (i *CalendarIntegration) AppliesToService(serviceID *uuid.UUID) bool {
	if i.ServiceID == nil {
		return true
	}
	return serviceID != nil && *i.ServiceID == *serviceID
}

func (i *CalendarIntegration) TokenExpired(now time.Time) bool {
	return i.TokenExpiresAt != nil && !now.Before(*i.TokenExpiresAt)
}

// TokenData is the token bundle returned by a provider exchange or refresh.
// The vault stores AccessToken and RefreshToken encrypted; ExpiresAt and Scope pass through.
type TokenData struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
}

// CalendarInfo describes the external calendar an integration points at.
type CalendarInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Color    string `json:"color,omitempty"`
}

// FrequencyMinutes is the configured sync interval, or def when unset.
func (i *CalendarIntegration) FrequencyMinutes(def int) int {
	if i.SyncSettings.SyncFrequencyMinutes > 0 {
		return i.SyncSettings.SyncFrequencyMinutes
	}
	return def
}

// NextSyncAt is the last sync (or creation) plus the sync interval.
func (i *CalendarIntegration) NextSyncAt(def int) time.Time {
	base := i.CreatedAt
	if i.LastSyncAt != nil {
		base = *i.LastSyncAt
	}
	return base.Add(time.Duration(i.FrequencyMinutes(def)) * time.Minute)
}

// DueForSync reports whether an active integration has never synced or its
// last sync is at least one interval old.
func (i *CalendarIntegration) DueForSync(now time.Time, def int) bool {
	if !i.IsActive {
		return false
	}
	if i.LastSyncAt == nil {
		return true
	}
	return !now.Before(i.LastSyncAt.Add(time.Duration(i.FrequencyMinutes(def)) * time.Minute))
}

// SyncWindow returns the [from, to) range pulled from the provider around now.
func (i *CalendarIntegration) SyncWindow(now time.Time, defPast, defFuture int) (time.Time, time.Time) {
	past, future := i.SyncSettings.SyncPastDays, i.SyncSettings.SyncFutureDays
	if past <= 0 {
		past = defPast
	}
	if future <= 0 {
		future = defFuture
	}
	return now.AddDate(0, 0, -past), now.AddDate(0, 0, future)
}
