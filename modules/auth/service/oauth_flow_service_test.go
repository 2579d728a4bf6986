package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/repository"
	calendarEntity "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	calendarService "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	provider.Adapter
	kind        calendarEntity.ProviderType
	exchangeErr error
	infoErr     error
	exchanged   []string
}

func (f *fakeAdapter) Provider() calendarEntity.ProviderType { return f.kind }

func (f *fakeAdapter) AuthURL(state string) (string, error) {
	if f.kind == calendarEntity.ProviderICal {
		return "", errors.NewAppError(errors.ErrUnsupportedOperation, "no oauth", nil)
	}
	return "https://accounts.test/auth?state=" + url.QueryEscape(state), nil
}

func (f *fakeAdapter) ExchangeCode(_ context.Context, code string) (*calendarEntity.TokenData, error) {
	f.exchanged = append(f.exchanged, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.kind == calendarEntity.ProviderICal {
		return &calendarEntity.TokenData{AccessToken: provider.EncodeFeedToken(code)}, nil
	}
	exp := time.Now().Add(time.Hour)
	return &calendarEntity.TokenData{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresAt: &exp}, nil
}

func (f *fakeAdapter) CalendarInfo(_ context.Context, cred calendarEntity.ProviderCredential) (*calendarEntity.CalendarInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	switch c := cred.(type) {
	case calendarEntity.FeedCredential:
		return &calendarEntity.CalendarInfo{ID: provider.FeedCalendarID(c.URL), Name: "Feed"}, nil
	case calendarEntity.OAuthCredential:
		return &calendarEntity.CalendarInfo{ID: "primary@" + c.AccessToken, Name: "Work", Timezone: "Europe/London"}, nil
	}
	return nil, errors.New("unexpected credential")
}

type fakeIntegrations struct {
	calendarService.IntegrationService
	connected []calendarService.ConnectRequest
}

func (f *fakeIntegrations) Connect(_ context.Context, _ security.Actor, req calendarService.ConnectRequest) (*calendarEntity.CalendarIntegration, error) {
	f.connected = append(f.connected, req)
	return &calendarEntity.CalendarIntegration{
		UserID:     req.UserID,
		ServiceID:  req.ServiceID,
		Provider:   req.Provider,
		CalendarID: req.Calendar.ID,
		IsActive:   true,
	}, nil
}

type flowHarness struct {
	svc          *oauthFlowService
	google       *fakeAdapter
	ical         *fakeAdapter
	integrations *fakeIntegrations
	redis        *miniredis.Miniredis
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cfg := &config.Config{}
	cfg.Security.StateSecret = "state-secret"
	cfg.Sync.StateTTL = 10 * time.Minute

	google := &fakeAdapter{kind: calendarEntity.ProviderGoogle}
	ical := &fakeAdapter{kind: calendarEntity.ProviderICal}
	integrations := &fakeIntegrations{}
	svc := NewOAuthFlowService(cfg, repository.NewFlowContextRepository(c), provider.NewRegistry(google, ical), integrations)

	return &flowHarness{
		svc:          svc.(*oauthFlowService),
		google:       google,
		ical:         ical,
		integrations: integrations,
		redis:        mr,
	}
}

func TestInitiateAndCompleteCallback(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user, svcID := uuid.New(), uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "Google", UserID: user, ServiceID: &svcID})
	require.NoError(t, err)
	assert.Contains(t, resp.AuthorizationURL, url.QueryEscape(resp.State))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), resp.ExpiresAt, 2*time.Second)

	integ, err := h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	require.NoError(t, err)
	assert.Equal(t, user, integ.UserID)
	require.NotNil(t, integ.ServiceID)
	assert.Equal(t, svcID, *integ.ServiceID)

	require.Len(t, h.integrations.connected, 1)
	req := h.integrations.connected[0]
	assert.Equal(t, "access-abc", req.Tokens.AccessToken)
	assert.Equal(t, "primary@access-abc", req.Calendar.ID)
}

func TestStateIsSingleUse(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user})
	require.NoError(t, err)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	require.NoError(t, err)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
	assert.Len(t, h.integrations.connected, 1)
}

func TestExpiredStateFailsClosed(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user})
	require.NoError(t, err)

	h.redis.FastForward(11 * time.Minute)
	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
	assert.Empty(t, h.google.exchanged)
}

func TestForgedStateIsRejected(t *testing.T) {
	h := newFlowHarness(t)
	forger := NewStateSigner("guessed-secret", time.Minute)
	state, _, err := forger.Sign(uuid.New(), nil, calendarEntity.ProviderGoogle, "nonce")
	require.NoError(t, err)

	_, err = h.svc.CompleteCallback(context.Background(), CallbackRequest{Provider: "google", Code: "abc", State: state})
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
	assert.Empty(t, h.google.exchanged)
}

func TestProviderErrorsAreMapped(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	_, err := h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Error: "access_denied"})
	assert.True(t, errors.HasCode(err, errors.ErrOAuthDenied))

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Error: "redirect_uri_mismatch"})
	assert.True(t, errors.HasCode(err, errors.ErrOAuthMisconfigured))
}

func TestProviderErrorKeepsStateUsable(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user})
	require.NoError(t, err)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Error: "access_denied", State: resp.State})
	require.Error(t, err)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	assert.NoError(t, err)
}

func TestExchangeFailurePersistsNothing(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()
	h.google.exchangeErr = errors.NewAppError(errors.ErrOAuthDenied, "invalid grant", nil)

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user})
	require.NoError(t, err)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	assert.True(t, errors.HasCode(err, errors.ErrOAuthDenied))
	assert.Empty(t, h.integrations.connected)
}

func TestInitiateChecks(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "outlook", UserID: user})
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedProvider))

	_, err = h.svc.Initiate(ctx, security.UserActor(uuid.New()), InitiateRequest{Provider: "google", UserID: user})
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	admin := security.UserActor(uuid.New(), security.CapManageAllIntegrations)
	_, err = h.svc.Initiate(ctx, admin, InitiateRequest{Provider: "google", UserID: user})
	assert.NoError(t, err)

	_, err = h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "ical", UserID: user})
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedOperation))
}

func TestOriginIPCheck(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State, ClientIP: "10.0.0.2"})
	assert.NoError(t, err, "origin change is only logged by default")

	h.svc.cfg.Security.EnforceOriginIP = true
	resp, err = h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State, ClientIP: "10.0.0.2"})
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
}

func TestConnectFeed(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()
	feed := "https://feeds.test/team.ics"

	integ, err := h.svc.ConnectFeed(ctx, security.UserActor(user), ConnectFeedRequest{UserID: user, URL: feed})
	require.NoError(t, err)
	assert.Equal(t, calendarEntity.ProviderICal, integ.Provider)
	assert.Equal(t, provider.FeedCalendarID(feed), integ.CalendarID)

	_, err = h.svc.ConnectFeed(ctx, security.UserActor(uuid.New()), ConnectFeedRequest{UserID: user, URL: feed})
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
}

func TestCancelPending(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	user := uuid.New()

	resp, err := h.svc.Initiate(ctx, security.UserActor(user), InitiateRequest{Provider: "google", UserID: user})
	require.NoError(t, err)

	n, err := h.svc.CancelPending(ctx, security.UserActor(user), user)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.svc.CompleteCallback(ctx, CallbackRequest{Provider: "google", Code: "abc", State: resp.State})
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
}
