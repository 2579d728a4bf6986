package mapper

import (
	"fmt"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
)

// Health is the freshness summary attached to integration responses.
type Health struct {
	Healthy      bool
	TokenExpired bool
	NextSyncAt   time.Time
}

func ToIntegrationResponse(integ *entity.CalendarIntegration, h Health) dto.IntegrationResponse {
	reminders := integ.SyncSettings.ReminderMinutes
	if reminders == nil {
		reminders = []int{}
	}
	return dto.IntegrationResponse{
		ID:                      integ.ID,
		UserID:                  integ.UserID,
		ServiceID:               integ.ServiceID,
		Provider:                integ.Provider.String(),
		CalendarID:              integ.CalendarID,
		CalendarName:            integ.CalendarName,
		CalendarTimezone:        integ.CalendarTimezone,
		IsActive:                integ.IsActive,
		SyncBookings:            integ.SyncBookings,
		SyncAvailability:        integ.SyncAvailability,
		AutoBlockExternalEvents: integ.AutoBlockExternalEvents,
		SyncSettings: dto.SyncSettingsResponse{
			SyncFrequencyMinutes: integ.SyncSettings.SyncFrequencyMinutes,
			EventTitleTemplate:   integ.SyncSettings.EventTitleTemplate,
			ReminderMinutes:      reminders,
			SyncPastDays:         integ.SyncSettings.SyncPastDays,
			SyncFutureDays:       integ.SyncSettings.SyncFutureDays,
			Color:                integ.SyncSettings.Color,
		},
		LastSyncAt:     integ.LastSyncAt,
		SyncErrorCount: integ.SyncErrorCount,
		LastSyncError:  integ.LastSyncError,
		TokenExpiresAt: integ.TokenExpiresAt,
		Healthy:        h.Healthy,
		TokenExpired:   h.TokenExpired,
		NextSyncAt:     h.NextSyncAt,
		CreatedAt:      integ.CreatedAt,
		UpdatedAt:      integ.UpdatedAt,
	}
}

// ApplySettings copies the non-nil fields of req onto integ.
func ApplySettings(integ *entity.CalendarIntegration, req *dto.UpdateSettingsRequest) {
	if req.SyncBookings != nil {
		integ.SyncBookings = *req.SyncBookings
	}
	if req.SyncAvailability != nil {
		integ.SyncAvailability = *req.SyncAvailability
	}
	if req.AutoBlockExternalEvents != nil {
		integ.AutoBlockExternalEvents = *req.AutoBlockExternalEvents
	}
	if req.IsActive != nil {
		integ.IsActive = *req.IsActive
	}

	s := req.SyncSettings
	if s == nil {
		return
	}
	if s.SyncFrequencyMinutes != nil {
		integ.SyncSettings.SyncFrequencyMinutes = *s.SyncFrequencyMinutes
	}
	if s.EventTitleTemplate != nil {
		integ.SyncSettings.EventTitleTemplate = *s.EventTitleTemplate
	}
	if s.ReminderMinutes != nil {
		integ.SyncSettings.ReminderMinutes = s.ReminderMinutes
	}
	if s.SyncPastDays != nil {
		integ.SyncSettings.SyncPastDays = *s.SyncPastDays
	}
	if s.SyncFutureDays != nil {
		integ.SyncSettings.SyncFutureDays = *s.SyncFutureDays
	}
	if s.Color != nil {
		integ.SyncSettings.Color = *s.Color
	}
}

func ToSyncResultResponse(synced, failed int, errs []string) dto.SyncResultResponse {
	if errs == nil {
		errs = []string{}
	}
	return dto.SyncResultResponse{Synced: synced, Failed: failed, Errors: errs}
}

func ToSyncRunResponse(r *entity.SyncRun) dto.SyncRunResponse {
	return dto.SyncRunResponse{
		ID:             r.ID,
		Status:         string(r.Status),
		EventsSeen:     r.EventsSeen,
		EventsUpserted: r.EventsUpserted,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

func ToSyncRunResponses(runs []entity.SyncRun) []dto.SyncRunResponse {
	out := make([]dto.SyncRunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, ToSyncRunResponse(&runs[i]))
	}
	return out
}

// ToSyncNowResponse summarises a manual pull of one integration.
func ToSyncNowResponse(integ *entity.CalendarIntegration, run *entity.SyncRun) dto.SyncNowResponse {
	resp := dto.SyncNowResponse{Run: ToSyncRunResponse(run)}
	if run.Status == entity.SyncRunSucceeded {
		resp.Result = ToSyncResultResponse(1, 0, nil)
		return resp
	}
	msg := "sync failed"
	if run.Error != nil {
		msg = *run.Error
	}
	resp.Result = ToSyncResultResponse(0, 1, []string{fmt.Sprintf("%s (%s): %s", integ.Provider, integ.CalendarName, msg)})
	return resp
}
