package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/retry"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultGoogleRevokeURL = "https://oauth2.googleapis.com/revoke"
	primaryCalendarID      = "primary"
	bookingIDProperty      = "booking_id"
)

type GoogleAdapter struct {
	cfg     config.GoogleAPIConfig
	oauth   *oauth2.Config
	guard   Guard
	client  *http.Client
	timeout time.Duration
	retry   retry.Config
}

// NewGoogleAdapter builds the adapter from cfg. client may be nil.
func NewGoogleAdapter(cfg *config.Config, client *http.Client) *GoogleAdapter {
	if client == nil {
		client = &http.Client{}
	}
	endpoint := google.Endpoint
	if cfg.GoogleAPI.AuthURL != "" {
		endpoint.AuthURL = cfg.GoogleAPI.AuthURL
	}
	if cfg.GoogleAPI.TokenURL != "" {
		endpoint.TokenURL = cfg.GoogleAPI.TokenURL
	}
	timeout := cfg.Sync.MetadataTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleAdapter{
		cfg: cfg.GoogleAPI,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleAPI.ClientID,
			ClientSecret: cfg.GoogleAPI.ClientSecret,
			RedirectURL:  cfg.GoogleAPI.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{calendar.CalendarScope},
		},
		guard:   NewGuard(cfg.Security.DenialPolicy),
		client:  client,
		timeout: timeout,
		retry:   retry.DefaultConfig(),
	}
}

func (g *GoogleAdapter) Provider() entity.ProviderType {
	return entity.ProviderGoogle
}

func (g *GoogleAdapter) configured() error {
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" || g.cfg.RedirectURI == "" {
		return errors.NewAppError(errors.ErrConfiguration, "google calendar credentials are not configured", nil)
	}
	return nil
}

// AuthURL requests offline access and forces the consent screen so a refresh token is always issued.
func (g *GoogleAdapter) AuthURL(state string) (string, error) {
	if err := g.configured(); err != nil {
		return "", err
	}
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (g *GoogleAdapter) ExchangeCode(ctx context.Context, code string) (*entity.TokenData, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(g.oauthContext(ctx), g.timeout)
	defer cancel()

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, mapOAuthError(err, false)
	}
	return tokenData(tok), nil
}

func (g *GoogleAdapter) Refresh(ctx context.Context, refreshToken string) (*entity.TokenData, error) {
	if refreshToken == "" {
		return nil, errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "google integration has no refresh token", nil)
	}
	ctx, cancel := context.WithTimeout(g.oauthContext(ctx), g.timeout)
	defer cancel()

	tok, err := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapOAuthError(err, true)
	}
	return tokenData(tok), nil
}

func (g *GoogleAdapter) CalendarInfo(ctx context.Context, cred entity.ProviderCredential) (*entity.CalendarInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	var entry *calendar.CalendarListEntry
	err = g.call(ctx, "CalendarList.Get", func() error {
		var err error
		entry, err = svc.CalendarList.Get(primaryCalendarID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entity.CalendarInfo{
		ID:       entry.Id,
		Name:     entry.Summary,
		Timezone: entry.TimeZone,
		Color:    entry.BackgroundColor,
	}, nil
}

func (g *GoogleAdapter) CreateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, b *bookingEntity.Booking) (string, error) {
	if err := g.guard.Write(actor, integ, "create_event"); err != nil {
		return "", err
	}
	svc, err := g.service(ctx, cred)
	if err != nil {
		return "", err
	}
	var created *calendar.Event
	err = g.call(ctx, "Events.Insert", func() error {
		var err error
		created, err = svc.Events.Insert(calendarID(integ), g.event(integ, b)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	logger.Info("Provider:Google:CreateEvent:Created", "integration_id", integ.ID.String(), "booking_id", b.ID.String())
	return created.Id, nil
}

func (g *GoogleAdapter) UpdateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, b *bookingEntity.Booking, externalID string) (bool, error) {
	if err := g.guard.Write(actor, integ, "update_event"); err != nil {
		return false, err
	}
	svc, err := g.service(ctx, cred)
	if err != nil {
		return false, err
	}
	err = g.call(ctx, "Events.Update", func() error {
		_, err := svc.Events.Update(calendarID(integ), externalID, g.event(integ, b)).Context(ctx).Do()
		return err
	})
	if isGone(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *GoogleAdapter) DeleteEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, externalID string) (bool, error) {
	if err := g.guard.Write(actor, integ, "delete_event"); err != nil {
		return false, err
	}
	svc, err := g.service(ctx, cred)
	if err != nil {
		return false, err
	}
	err = g.call(ctx, "Events.Delete", func() error {
		return svc.Events.Delete(calendarID(integ), externalID).Context(ctx).Do()
	})
	if err != nil && !isGone(err) {
		return false, err
	}
	return true, nil
}

func (g *GoogleAdapter) ListBusyIntervals(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, from, to time.Time) ([]entity.BusyInterval, error) {
	if ok, err := g.guard.Read(actor, integ, "list_busy_intervals"); !ok {
		return nil, err
	}
	svc, err := g.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	loc := integrationLocation(integ)

	var out []entity.BusyInterval
	err = g.call(ctx, "Events.List", func() error {
		out = out[:0]
		return svc.Events.List(calendarID(integ)).
			SingleEvents(true).
			OrderBy("startTime").
			ShowDeleted(false).
			TimeMin(from.UTC().Format(time.RFC3339)).
			TimeMax(to.UTC().Format(time.RFC3339)).
			MaxResults(250).
			Pages(ctx, func(page *calendar.Events) error {
				for _, item := range page.Items {
					if iv, ok := busyInterval(item, loc); ok {
						out = append(out, iv)
					}
				}
				return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GoogleAdapter) IsSlotAvailable(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, start, end time.Time) (bool, error) {
	if ok, err := g.guard.Read(actor, integ, "is_slot_available"); !ok {
		return err == nil, err
	}
	return checkAvailable(ctx, g, actor, integ, cred, start, end)
}

// Revoke invalidates the grant at Google. The refresh token is preferred since
// revoking it also revokes every access token minted from it.
func (g *GoogleAdapter) Revoke(ctx context.Context, cred entity.ProviderCredential) error {
	oc, ok := cred.(entity.OAuthCredential)
	if !ok {
		return nil
	}
	token := oc.RefreshToken
	if token == "" {
		token = oc.AccessToken
	}
	if token == "" {
		return nil
	}
	revokeURL := g.cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultGoogleRevokeURL
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.NewAppError(errors.ErrConfiguration, "invalid google revoke url", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.NewAppError(errors.ErrProviderUnavailable, "google token revocation failed", err)
	}
	defer resp.Body.Close()
	// 400 means the token is already invalid.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return errors.NewAppError(errors.ErrProviderUnavailable, fmt.Sprintf("google token revocation returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (g *GoogleAdapter) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

func (g *GoogleAdapter) service(ctx context.Context, cred entity.ProviderCredential) (*calendar.Service, error) {
	oc, ok := cred.(entity.OAuthCredential)
	if !ok || oc.AccessToken == "" {
		return nil, errors.NewAppError(errors.ErrConfiguration, "google integration is missing its access token", nil)
	}
	base := g.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: oc.AccessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if g.cfg.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(g.cfg.APIEndpoint, "/")+"/"))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrConfiguration, "failed to build google calendar client", err)
	}
	return svc, nil
}

// call retries throttling, server errors and transport failures. Anything
// else from the API is returned as is.
func (g *GoogleAdapter) call(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, g.retry, "google."+op, func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code != http.StatusTooManyRequests && gerr.Code < 500 {
			return retry.Permanent(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if isGone(err) {
		return errors.NewAppError(errors.ErrNotFound, "google calendar resource not found", err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return errors.NewAppError(errors.ErrTokenExpired, "google rejected the access token", err)
	}
	logger.Warn("Provider:Google:CallFailed", "operation", op, "error", err)
	return errors.NewAppError(errors.ErrProviderUnavailable, "google calendar request failed", err)
}

func (g *GoogleAdapter) event(integ *entity.CalendarIntegration, b *bookingEntity.Booking) *calendar.Event {
	tz := integ.CalendarTimezone
	ev := &calendar.Event{
		Summary:      RenderTitle(integ.SyncSettings.EventTitleTemplate, b),
		Description:  Describe(b),
		Location:     b.Location,
		Start:        &calendar.EventDateTime{DateTime: b.StartsAt.UTC().Format(time.RFC3339), TimeZone: tz},
		End:          &calendar.EventDateTime{DateTime: b.EndsAt.UTC().Format(time.RFC3339), TimeZone: tz},
		Transparency: "opaque",
		ColorId:      GoogleColorID(integ.SyncSettings.Color),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{bookingIDProperty: b.ID.String()},
		},
		Reminders: reminders(integ.SyncSettings.ReminderMinutes),
	}
	return ev
}

func reminders(minutes []int) *calendar.EventReminders {
	if len(minutes) == 0 {
		return &calendar.EventReminders{UseDefault: true}
	}
	r := &calendar.EventReminders{ForceSendFields: []string{"UseDefault"}}
	for _, m := range minutes {
		r.Overrides = append(r.Overrides, &calendar.EventReminder{Method: "popup", Minutes: int64(m)})
	}
	return r
}

func busyInterval(item *calendar.Event, loc *time.Location) (entity.BusyInterval, bool) {
	if item.Status == "cancelled" || item.Start == nil || item.End == nil {
		return entity.BusyInterval{}, false
	}
	iv := entity.BusyInterval{
		ID:    item.Id,
		Title: item.Summary,
		Busy:  item.Transparency != "transparent",
	}
	var err error
	if item.Start.Date != "" {
		iv.AllDay = true
		if iv.Start, err = time.ParseInLocation("2006-01-02", item.Start.Date, loc); err != nil {
			return entity.BusyInterval{}, false
		}
		if iv.End, err = time.ParseInLocation("2006-01-02", item.End.Date, loc); err != nil {
			return entity.BusyInterval{}, false
		}
		return iv, true
	}
	if iv.Start, err = time.Parse(time.RFC3339, item.Start.DateTime); err != nil {
		return entity.BusyInterval{}, false
	}
	if iv.End, err = time.Parse(time.RFC3339, item.End.DateTime); err != nil {
		return entity.BusyInterval{}, false
	}
	return iv, true
}

func calendarID(integ *entity.CalendarIntegration) string {
	if integ.CalendarID == "" {
		return primaryCalendarID
	}
	return integ.CalendarID
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
}

func tokenData(tok *oauth2.Token) *entity.TokenData {
	td := &entity.TokenData{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		td.ExpiresAt = &exp
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		td.Scope = scope
	}
	return td
}

// mapOAuthError turns token endpoint failures into the oauth error taxonomy.
func mapOAuthError(err error, refreshing bool) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant":
			if refreshing {
				return errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "google refresh token is no longer valid", err)
			}
			return errors.NewAppError(errors.ErrOAuthDenied, "the google authorization code is invalid or was already used", err)
		case "invalid_client", "unauthorized_client":
			return errors.NewAppError(errors.ErrOAuthMisconfigured, "google oauth client is misconfigured", err)
		}
	}
	return errors.NewAppError(errors.ErrProviderUnavailable, "google token endpoint request failed", err)
}
