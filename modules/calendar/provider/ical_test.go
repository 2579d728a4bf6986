package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/retry"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/core/storage"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Example//Feed//EN\r\n" +
	"X-WR-CALNAME:Studio Rota\r\n" +
	"X-WR-TIMEZONE:Europe/London\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:meeting-1\r\n" +
	"DTSTART:20240501T090000Z\r\n" +
	"DTEND:20240501T100000Z\r\n" +
	"SUMMARY:Supplier call\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:bank-holiday\r\n" +
	"DTSTART;VALUE=DATE:20240501\r\n" +
	"DTEND;VALUE=DATE:20240502\r\n" +
	"SUMMARY:Bank holiday\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:no-end\r\n" +
	"DTSTART:20240501T120000Z\r\n" +
	"SUMMARY:Broken\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type feedServer struct {
	srv   *httptest.Server
	hits  atomic.Int32
	flaky atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.ics", func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if fs.flaky.Load() > 0 {
			fs.flaky.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, sampleFeed)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>not a calendar</body></html>")
	})
	mux.HandleFunc("/gone.ics", func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func newICalFixture(t *testing.T, policy string) (*ICalAdapter, *feedServer, *storage.FSStore) {
	fs := newFeedServer(t)
	cfg := testConfig(fs.srv.URL)
	cfg.Security.DenialPolicy = policy
	store := storage.NewMemStore()
	a := NewICalAdapter(cfg, store, fs.srv.Client())
	a.feed.retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	return a, fs, store
}

func TestNormalizeFeedURL(t *testing.T) {
	u, err := NormalizeFeedURL(" webcal://example.com/cal.ics ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cal.ics", u)

	_, err = NormalizeFeedURL("ftp://example.com/cal.ics")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))

	_, err = NormalizeFeedURL("not a url")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}

func TestICalExchangeCodeValidatesFeed(t *testing.T) {
	a, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)
	feedURL := fs.srv.URL + "/cal.ics"

	td, err := a.ExchangeCode(context.Background(), feedURL)
	require.NoError(t, err)
	assert.Nil(t, td.ExpiresAt)
	assert.Empty(t, td.RefreshToken)
	assert.NotEqual(t, feedURL, td.AccessToken, "token is opaque")

	decoded, err := DecodeFeedToken(td.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, feedURL, decoded)

	_, err = a.ExchangeCode(context.Background(), fs.srv.URL+"/page.html")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}

func TestICalFetchRetriesServerErrorsOnly(t *testing.T) {
	a, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)

	fs.flaky.Store(1)
	_, err := a.ExchangeCode(context.Background(), fs.srv.URL+"/cal.ics")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fs.hits.Load())

	fs.hits.Store(0)
	_, err = a.ExchangeCode(context.Background(), fs.srv.URL+"/gone.ics")
	assert.True(t, errors.HasCode(err, errors.ErrProviderUnavailable))
	assert.Equal(t, int32(1), fs.hits.Load(), "4xx is not retried")
}

func TestICalUnsupportedOperations(t *testing.T) {
	a, _, _ := newICalFixture(t, config.DenialPolicyFailOpen)

	_, err := a.AuthURL("state")
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedOperation))
	_, err = a.Refresh(context.Background(), "anything")
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedOperation))
}

func TestICalCalendarInfo(t *testing.T) {
	a, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)
	feedURL := fs.srv.URL + "/cal.ics"

	info, err := a.CalendarInfo(context.Background(), entity.FeedCredential{URL: feedURL})
	require.NoError(t, err)
	assert.Equal(t, "Studio Rota", info.Name)
	assert.Equal(t, "Europe/London", info.Timezone)
	assert.Equal(t, FeedCalendarID(feedURL), info.ID)
	assert.Len(t, info.ID, 64)
}

func TestICalListBusyIntervals(t *testing.T) {
	a, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)
	owner := uuid.New()
	integ := testIntegration(entity.ProviderICal, owner)
	cred := entity.FeedCredential{URL: fs.srv.URL + "/cal.ics"}
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	got, err := a.ListBusyIntervals(context.Background(), security.UserActor(owner), integ, cred, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "event without DTEND is skipped")

	byID := map[string]entity.BusyInterval{}
	for _, iv := range got {
		byID[iv.ID] = iv
	}
	assert.Equal(t, day.Add(9*time.Hour), byID["meeting-1"].Start.UTC())
	assert.True(t, byID["meeting-1"].Busy)
	assert.True(t, byID["bank-holiday"].AllDay)
}

func TestICalIsSlotAvailable(t *testing.T) {
	a, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)
	owner := uuid.New()
	integ := testIntegration(entity.ProviderICal, owner)
	cred := entity.FeedCredential{URL: fs.srv.URL + "/cal.ics"}
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	actor := security.UserActor(owner)

	free, err := a.IsSlotAvailable(context.Background(), actor, integ, cred, day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.False(t, free)

	free, err = a.IsSlotAvailable(context.Background(), actor, integ, cred, day.Add(10*time.Hour), day.Add(11*time.Hour))
	require.NoError(t, err)
	assert.True(t, free, "touching the end of a busy block and sitting inside an all-day event is free")
}

func TestICalReadDenialPolicy(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stranger := security.UserActor(uuid.New())

	open, fs, _ := newICalFixture(t, config.DenialPolicyFailOpen)
	integ := testIntegration(entity.ProviderICal, uuid.New())
	cred := entity.FeedCredential{URL: fs.srv.URL + "/cal.ics"}

	free, err := open.IsSlotAvailable(context.Background(), stranger, integ, cred, day.Add(9*time.Hour), day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.True(t, free)
	list, err := open.ListBusyIntervals(context.Background(), stranger, integ, cred, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int32(0), fs.hits.Load(), "denied reads never reach the feed")

	closed, fs2, _ := newICalFixture(t, config.DenialPolicyFailClosed)
	cred = entity.FeedCredential{URL: fs2.srv.URL + "/cal.ics"}
	free, err = closed.IsSlotAvailable(context.Background(), stranger, integ, cred, day.Add(9*time.Hour), day.Add(10*time.Hour))
	assert.False(t, free)
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
}

func TestICalEventFileLifecycle(t *testing.T) {
	a, _, store := newICalFixture(t, config.DenialPolicyFailOpen)
	owner := uuid.New()
	integ := testIntegration(entity.ProviderICal, owner)
	b := testBooking(owner)
	actor := security.UserActor(owner)
	ctx := context.Background()

	key, err := a.CreateEvent(ctx, actor, integ, entity.FeedCredential{}, b)
	require.NoError(t, err)
	assert.Equal(t, "ical/"+integ.ID.String()+"/haircut-with-ada-lovelace-"+b.ID.String()+".ics", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "UID:"+b.ID.String()+"@booking.test")
	assert.Contains(t, body, "DTSTART:20240501T140000Z")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VALARM"))

	b.EndsAt = b.EndsAt.Add(30 * time.Minute)
	ok, err := a.UpdateEvent(ctx, actor, integ, entity.FeedCredential{}, b, key)
	require.NoError(t, err)
	assert.True(t, ok)
	data, _ = store.Get(ctx, key)
	assert.Contains(t, string(data), "DTEND:20240501T153000Z")

	ok, err = a.DeleteEvent(ctx, actor, integ, entity.FeedCredential{}, key)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	ok, err = a.UpdateEvent(ctx, actor, integ, entity.FeedCredential{}, b, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.CreateEvent(ctx, security.UserActor(uuid.New()), integ, entity.FeedCredential{}, b)
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
}
