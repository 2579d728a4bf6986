package validator

import (
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/controller"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
)

const (
	MinSyncFrequencyMinutes = 5
	MaxSyncFrequencyMinutes = 24 * 60
	MaxSyncDays             = 365
	MaxReminderMinutes      = 4 * 7 * 24 * 60
	MaxWindow               = 62 * 24 * time.Hour
)

type ValidationResult struct {
	Errors []controller.ValidationError `json:"errors"`
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, controller.NewValidationError(field, message))
}

func (r *ValidationResult) HasError() bool {
	return len(r.Errors) > 0
}

func ValidateConnectFeedRequest(req *dto.ConnectFeedRequest) *ValidationResult {
	result := &ValidationResult{}
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		result.add("url", "url is required")
		return result
	}
	if _, err := provider.NormalizeFeedURL(raw); err != nil {
		result.add("url", "url must be an http, https or webcal address")
	}
	return result
}

func ValidateUpdateSettingsRequest(req *dto.UpdateSettingsRequest) *ValidationResult {
	result := &ValidationResult{}
	s := req.SyncSettings
	if s == nil {
		return result
	}

	if s.SyncFrequencyMinutes != nil {
		if f := *s.SyncFrequencyMinutes; f < MinSyncFrequencyMinutes || f > MaxSyncFrequencyMinutes {
			result.add("sync_settings.sync_frequency_minutes", "must be between 5 and 1440")
		}
	}
	if s.SyncPastDays != nil && (*s.SyncPastDays < 0 || *s.SyncPastDays > MaxSyncDays) {
		result.add("sync_settings.sync_past_days", "must be between 0 and 365")
	}
	if s.SyncFutureDays != nil && (*s.SyncFutureDays < 1 || *s.SyncFutureDays > MaxSyncDays) {
		result.add("sync_settings.sync_future_days", "must be between 1 and 365")
	}
	for _, m := range s.ReminderMinutes {
		if m < 0 || m > MaxReminderMinutes {
			result.add("sync_settings.reminder_minutes", "reminders must be between 0 and 40320 minutes")
			break
		}
	}
	if s.Color != nil && *s.Color != "" && !provider.ValidHexColor(*s.Color) {
		result.add("sync_settings.color", "color must be a hex value")
	}
	if s.EventTitleTemplate != nil && len(*s.EventTitleTemplate) > 200 {
		result.add("sync_settings.event_title_template", "template is too long")
	}
	return result
}

// ParseWindow parses an RFC3339 start/end pair.
func ParseWindow(start, end string) (time.Time, time.Time, *ValidationResult) {
	result := &ValidationResult{}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		result.add("start", "start must be an RFC3339 timestamp")
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		result.add("end", "end must be an RFC3339 timestamp")
	}
	if result.HasError() {
		return s, e, result
	}
	if !e.After(s) {
		result.add("end", "end must be after start")
	} else if e.Sub(s) > MaxWindow {
		result.add("end", "window must not exceed 62 days")
	}
	return s.UTC(), e.UTC(), result
}
