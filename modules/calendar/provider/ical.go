package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/retry"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/core/storage"
	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/ical"

	ics "github.com/arran4/golang-ical"
	"github.com/gosimple/slug"
)

const icsContentType = "text/calendar; charset=utf-8"

// ICalAdapter treats a read-only feed url as the calendar. Bookings pushed to
// it become generated .ics objects in the object store.
type ICalAdapter struct {
	guard  Guard
	feed   *feedFetcher
	store  storage.ObjectStore
	gen    *ical.Generator
	origin string
}

func NewICalAdapter(cfg *config.Config, store storage.ObjectStore, client *http.Client) *ICalAdapter {
	if client == nil {
		client = &http.Client{}
	}
	rc := retry.DefaultConfig()
	if cfg.Sync.FeedMaxAttempts > 0 {
		rc.MaxAttempts = cfg.Sync.FeedMaxAttempts
	}
	timeout := cfg.Sync.FeedTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ICalAdapter{
		guard:  NewGuard(cfg.Security.DenialPolicy),
		feed:   &feedFetcher{client: client, timeout: timeout, retry: rc},
		store:  store,
		gen:    ical.NewGenerator(fmt.Sprintf("-//%s//Calendar Integration//EN", cfg.Server.AppOrigin)),
		origin: cfg.Server.AppOrigin,
	}
}

func (a *ICalAdapter) Provider() entity.ProviderType {
	return entity.ProviderICal
}

func (a *ICalAdapter) AuthURL(string) (string, error) {
	return "", errors.NewAppError(errors.ErrUnsupportedOperation, "ical feeds are connected by url, not oauth", nil)
}

// ExchangeCode validates the feed behind code (a feed url) and returns it as an opaque token.
func (a *ICalAdapter) ExchangeCode(ctx context.Context, code string) (*entity.TokenData, error) {
	feedURL, err := NormalizeFeedURL(code)
	if err != nil {
		return nil, err
	}
	body, err := a.feed.fetch(ctx, feedURL)
	if err != nil {
		if errors.Is(err, errFeedTooLarge) {
			return nil, errors.NewAppError(errors.ErrInvalidInput, "calendar feed is too large to import", err)
		}
		return nil, err
	}
	if !looksLikeCalendar(body) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "url does not serve an iCalendar feed", nil)
	}
	return &entity.TokenData{AccessToken: EncodeFeedToken(feedURL)}, nil
}

func (a *ICalAdapter) Refresh(context.Context, string) (*entity.TokenData, error) {
	return nil, errors.NewAppError(errors.ErrUnsupportedOperation, "ical feeds have no refresh token", nil)
}

func (a *ICalAdapter) CalendarInfo(ctx context.Context, cred entity.ProviderCredential) (*entity.CalendarInfo, error) {
	feedURL, err := feedURLOf(cred)
	if err != nil {
		return nil, err
	}
	body, err := a.feed.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	info := &entity.CalendarInfo{ID: FeedCalendarID(feedURL)}
	cal, err := ics.ParseCalendar(strings.NewReader(body))
	if err != nil {
		logger.Warn("Provider:ICal:CalendarInfo:MetadataUnreadable", "host", feedHost(feedURL), "error", err)
	} else {
		for _, p := range cal.CalendarProperties {
			switch ics.Property(p.IANAToken) {
			case ics.PropertyXWRCalName:
				info.Name = p.Value
			case ics.PropertyXWRTimezone:
				info.Timezone = p.Value
			case ics.PropertyColor:
				info.Color = p.Value
			}
		}
	}
	if info.Name == "" {
		info.Name = feedHost(feedURL)
	}
	if info.Timezone == "" {
		info.Timezone = "UTC"
	}
	return info, nil
}

func (a *ICalAdapter) CreateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, b *bookingEntity.Booking) (string, error) {
	if err := a.guard.Write(actor, integ, "create_event"); err != nil {
		return "", err
	}
	title := RenderTitle(integ.SyncSettings.EventTitleTemplate, b)
	key := fmt.Sprintf("ical/%s/%s-%s.ics", integ.ID, slug.Make(title), b.ID)
	if err := a.store.Put(ctx, key, []byte(a.render(integ, b, title)), icsContentType); err != nil {
		return "", errors.NewAppError(errors.ErrProviderUnavailable, "failed to store generated calendar file", err)
	}
	logger.Info("Provider:ICal:CreateEvent:Stored", "integration_id", integ.ID.String(), "booking_id", b.ID.String())
	return key, nil
}

func (a *ICalAdapter) UpdateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, b *bookingEntity.Booking, externalID string) (bool, error) {
	if err := a.guard.Write(actor, integ, "update_event"); err != nil {
		return false, err
	}
	if _, err := a.store.Get(ctx, externalID); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, nil
		}
		return false, errors.NewAppError(errors.ErrProviderUnavailable, "failed to read generated calendar file", err)
	}
	title := RenderTitle(integ.SyncSettings.EventTitleTemplate, b)
	if err := a.store.Put(ctx, externalID, []byte(a.render(integ, b, title)), icsContentType); err != nil {
		return false, errors.NewAppError(errors.ErrProviderUnavailable, "failed to store generated calendar file", err)
	}
	return true, nil
}

func (a *ICalAdapter) DeleteEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, externalID string) (bool, error) {
	if err := a.guard.Write(actor, integ, "delete_event"); err != nil {
		return false, err
	}
	if err := a.store.Delete(ctx, externalID); err != nil {
		return false, errors.NewAppError(errors.ErrProviderUnavailable, "failed to remove generated calendar file", err)
	}
	return true, nil
}

func (a *ICalAdapter) ListBusyIntervals(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, from, to time.Time) ([]entity.BusyInterval, error) {
	if ok, err := a.guard.Read(actor, integ, "list_busy_intervals"); !ok {
		return nil, err
	}
	feedURL, err := feedURLOf(cred)
	if err != nil {
		return nil, err
	}
	body, err := a.feed.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !looksLikeCalendar(body) {
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "calendar feed no longer serves iCalendar data", nil)
	}

	parser := ical.Parser{Location: integrationLocation(integ)}
	events := parser.Parse(body, from, to)
	out := make([]entity.BusyInterval, 0, len(events))
	for _, ev := range events {
		out = append(out, entity.BusyInterval{
			ID:     ev.UID,
			Title:  ev.Summary,
			Start:  ev.Start,
			End:    ev.End,
			AllDay: ev.AllDay,
			Busy:   !ev.Transparent,
		})
	}
	return out, nil
}

func (a *ICalAdapter) IsSlotAvailable(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, start, end time.Time) (bool, error) {
	if ok, err := a.guard.Read(actor, integ, "is_slot_available"); !ok {
		return err == nil, err
	}
	return checkAvailable(ctx, a, actor, integ, cred, start, end)
}

// Revoke is a no-op: a feed url has nothing to revoke.
func (a *ICalAdapter) Revoke(context.Context, entity.ProviderCredential) error {
	return nil
}

func (a *ICalAdapter) render(integ *entity.CalendarIntegration, b *bookingEntity.Booking, title string) string {
	ev := ical.Event{
		UID:             ical.BookingUID(b.ID.String(), a.origin),
		Summary:         title,
		Description:     Describe(b),
		Location:        b.Location,
		Start:           b.StartsAt,
		End:             b.EndsAt,
		ReminderMinutes: integ.SyncSettings.ReminderMinutes,
	}
	if b.ClientEmail != "" {
		ev.Attendees = []ical.Person{{Name: b.ClientName, Email: b.ClientEmail}}
	}
	return a.gen.Calendar(ev)
}

// FeedCalendarID is the stable external calendar id of a feed.
func FeedCalendarID(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return hex.EncodeToString(sum[:])
}

func feedURLOf(cred entity.ProviderCredential) (string, error) {
	fc, ok := cred.(entity.FeedCredential)
	if !ok || fc.URL == "" {
		return "", errors.NewAppError(errors.ErrConfiguration, "ical integration is missing its feed url", nil)
	}
	return fc.URL, nil
}

func integrationLocation(integ *entity.CalendarIntegration) *time.Location {
	if integ.CalendarTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(integ.CalendarTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
