package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			EncryptionKey: "test-encryption-key",
			StateSecret:   "test-state-secret",
			DenialPolicy:  config.DenialPolicyFailOpen,
		},
		Sync: config.SyncConfig{
			DefaultFrequencyMinutes: 60,
			BatchSize:               50,
			RetentionDays:           30,
			MaxErrorCount:           5,
		},
	}
}

func newTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

// ========== integration repository ==========

type memIntegrations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.CalendarIntegration
}

var _ repository.IntegrationRepository = (*memIntegrations)(nil)

func newMemIntegrations() *memIntegrations {
	return &memIntegrations{rows: map[uuid.UUID]*entity.CalendarIntegration{}}
}

func sameService(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memIntegrations) put(integ *entity.CalendarIntegration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if integ.ID == uuid.Nil {
		integ.ID = uuid.New()
	}
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = time.Now().Add(-time.Hour)
	}
	cp := *integ
	m.rows[integ.ID] = &cp
}

func (m *memIntegrations) Upsert(_ context.Context, integ *entity.CalendarIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == integ.UserID && sameService(row.ServiceID, integ.ServiceID) &&
			row.Provider == integ.Provider && row.CalendarID == integ.CalendarID {
			row.AccessToken = integ.AccessToken
			if integ.RefreshToken != nil {
				row.RefreshToken = integ.RefreshToken
			}
			row.TokenExpiresAt = integ.TokenExpiresAt
			row.CalendarName = integ.CalendarName
			row.IsActive = true
			row.SyncErrorCount = 0
			row.LastSyncError = nil
			*integ = *row
			return nil
		}
	}
	integ.ID = uuid.New()
	integ.CreatedAt = time.Now()
	integ.UpdatedAt = integ.CreatedAt
	cp := *integ
	m.rows[integ.ID] = &cp
	return nil
}

func (m *memIntegrations) GetByID(_ context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *memIntegrations) list(filter func(*entity.CalendarIntegration) bool) []entity.CalendarIntegration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.CalendarIntegration{}
	for _, row := range m.rows {
		if filter(row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out
}

func (m *memIntegrations) ListByUser(_ context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error) {
	return m.list(func(i *entity.CalendarIntegration) bool { return i.UserID == userID }), nil
}

func (m *memIntegrations) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error) {
	return m.list(func(i *entity.CalendarIntegration) bool { return i.UserID == userID && i.IsActive }), nil
}

func (m *memIntegrations) ListDue(_ context.Context, now time.Time, def, limit int) ([]entity.CalendarIntegration, error) {
	out := m.list(func(i *entity.CalendarIntegration) bool { return i.DueForSync(now, def) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memIntegrations) UpdateSettings(_ context.Context, integ *entity.CalendarIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[integ.ID]
	row.SyncBookings = integ.SyncBookings
	row.SyncAvailability = integ.SyncAvailability
	row.AutoBlockExternalEvents = integ.AutoBlockExternalEvents
	row.SyncSettings = integ.SyncSettings
	row.IsActive = integ.IsActive
	return nil
}

func (m *memIntegrations) UpdateTokens(_ context.Context, id uuid.UUID, access string, refresh *string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.AccessToken = access
	if refresh != nil {
		row.RefreshToken = refresh
	}
	row.TokenExpiresAt = expiresAt
	return nil
}

func (m *memIntegrations) MarkSyncSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.LastSyncAt = &at
	row.SyncErrorCount = 0
	row.LastSyncError = nil
	return nil
}

func (m *memIntegrations) MarkSyncFailure(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.SyncErrorCount++
	row.LastSyncError = &message
	return nil
}

func (m *memIntegrations) Deactivate(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.IsActive = false
	row.SyncErrorCount++
	row.LastSyncError = &reason
	return nil
}

func (m *memIntegrations) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// ========== event repository ==========

type memEvents struct {
	mu           sync.Mutex
	rows         map[string]*entity.CalendarEvent
	integrations *memIntegrations
}

var _ repository.EventRepository = (*memEvents)(nil)

func newMemEvents(integrations *memIntegrations) *memEvents {
	return &memEvents{rows: map[string]*entity.CalendarEvent{}, integrations: integrations}
}

func eventKey(integrationID uuid.UUID, externalID string) string {
	return integrationID.String() + "|" + externalID
}

func (m *memEvents) Upsert(_ context.Context, ev *entity.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventKey(ev.IntegrationID, ev.ExternalEventID)
	if row, ok := m.rows[key]; ok {
		if ev.BookingID == nil {
			ev.BookingID = row.BookingID
		}
		if row.BlockType == entity.BlockTypeBooking {
			ev.BlockType = entity.BlockTypeBooking
		}
		ev.ID = row.ID
		ev.CreatedAt = row.CreatedAt
	} else {
		ev.ID = uuid.New()
		ev.CreatedAt = time.Now()
	}
	cp := *ev
	m.rows[key] = &cp
	return nil
}

func (m *memEvents) all() []entity.CalendarEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.CalendarEvent{}
	for _, row := range m.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (m *memEvents) FindByBooking(_ context.Context, integrationID, bookingID uuid.UUID) (*entity.CalendarEvent, error) {
	for _, ev := range m.all() {
		if ev.IntegrationID == integrationID && ev.BookingID != nil && *ev.BookingID == bookingID {
			return &ev, nil
		}
	}
	return nil, nil
}

func (m *memEvents) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]entity.CalendarEvent, error) {
	out := []entity.CalendarEvent{}
	for _, ev := range m.all() {
		if ev.BookingID != nil && *ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEvents) ListBookingMirrors(_ context.Context, integrationID uuid.UUID) ([]entity.CalendarEvent, error) {
	out := []entity.CalendarEvent{}
	for _, ev := range m.all() {
		if ev.IntegrationID == integrationID && ev.BookingID != nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEvents) ListBlocking(ctx context.Context, f repository.BlockingFilter) ([]entity.CalendarEvent, error) {
	out := []entity.CalendarEvent{}
	for _, ev := range m.all() {
		integ, _ := m.integrations.GetByID(ctx, ev.IntegrationID)
		if integ == nil || integ.UserID != f.UserID || !integ.IsActive || !integ.AutoBlockExternalEvents {
			continue
		}
		if integ.ServiceID != nil && (f.ServiceID == nil || *integ.ServiceID != *f.ServiceID) {
			continue
		}
		if !ev.BlocksBooking || ev.IsAllDay || !entity.Overlaps(ev.StartsAt, ev.EndsAt, f.From, f.To) {
			continue
		}
		if f.ExcludeBookingID != nil && ev.BookingID != nil && *ev.BookingID == *f.ExcludeBookingID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *memEvents) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, row := range m.rows {
		if row.ID == id {
			delete(m.rows, key)
		}
	}
	return nil
}

func (m *memEvents) DeleteMissingExternal(_ context.Context, integrationID uuid.UUID, from, to time.Time, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := map[string]bool{}
	for _, k := range keep {
		kept[k] = true
	}
	var n int64
	for key, row := range m.rows {
		if row.IntegrationID != integrationID || row.BlockType != entity.BlockTypeExternal || kept[row.ExternalEventID] {
			continue
		}
		if row.StartsAt.Before(to) && row.EndsAt.After(from) {
			delete(m.rows, key)
			n++
		}
	}
	return n, nil
}

func (m *memEvents) PurgeEndedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, row := range m.rows {
		if row.EndsAt.Before(cutoff) {
			delete(m.rows, key)
			n++
		}
	}
	return n, nil
}

// ========== sync runs ==========

type memRuns struct {
	mu   sync.Mutex
	runs []entity.SyncRun
}

func (m *memRuns) Create(_ context.Context, run *entity.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = uuid.New()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memRuns) ListRecent(_ context.Context, integrationID uuid.UUID, limit int) ([]entity.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.SyncRun{}
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.runs[i].IntegrationID == integrationID {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

// ========== adapter ==========

// fakeAdapter records calls; failFor makes every call for the listed
// integration ids fail with a provider error.
type fakeAdapter struct {
	provider entity.ProviderType
	guard    provider.Guard

	mu       sync.Mutex
	busy     []entity.BusyInterval
	failFor  map[uuid.UUID]bool
	gone     map[string]bool
	created  []string
	updated  []string
	deleted  []string
	revoked  int
	checks   int
	refresh  func(refreshToken string) (*entity.TokenData, error)
	nextID   int
	refreshN atomic.Int32
}

var _ provider.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter(p entity.ProviderType) *fakeAdapter {
	return &fakeAdapter{
		provider: p,
		guard:    provider.NewGuard(config.DenialPolicyFailOpen),
		failFor:  map[uuid.UUID]bool{},
		gone:     map[string]bool{},
	}
}

func (f *fakeAdapter) unavailable(integ *entity.CalendarIntegration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[integ.ID] {
		return errors.NewAppError(errors.ErrProviderUnavailable, "calendar provider is unavailable", nil)
	}
	return nil
}

func (f *fakeAdapter) Provider() entity.ProviderType { return f.provider }

func (f *fakeAdapter) AuthURL(state string) (string, error) {
	return "https://accounts.test/auth?state=" + state, nil
}

func (f *fakeAdapter) ExchangeCode(_ context.Context, code string) (*entity.TokenData, error) {
	exp := time.Now().Add(time.Hour)
	return &entity.TokenData{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresAt: &exp}, nil
}

func (f *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (*entity.TokenData, error) {
	f.refreshN.Add(1)
	if f.refresh != nil {
		td, err := f.refresh(refreshToken)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return td, err
	}
	exp := time.Now().Add(time.Hour)
	return &entity.TokenData{AccessToken: "refreshed-access", ExpiresAt: &exp}, nil
}

func (f *fakeAdapter) CalendarInfo(context.Context, entity.ProviderCredential) (*entity.CalendarInfo, error) {
	return &entity.CalendarInfo{ID: "primary", Name: "Work", Timezone: "Europe/London"}, nil
}

func (f *fakeAdapter) CreateEvent(_ context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, _ *bookingEntity.Booking) (string, error) {
	if err := f.guard.Write(actor, integ, "CreateEvent"); err != nil {
		return "", err
	}
	if err := f.unavailable(integ); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("evt-%d", f.nextID)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeAdapter) UpdateEvent(_ context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, _ *bookingEntity.Booking, externalID string) (bool, error) {
	if err := f.guard.Write(actor, integ, "UpdateEvent"); err != nil {
		return false, err
	}
	if err := f.unavailable(integ); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[externalID] {
		return false, nil
	}
	f.updated = append(f.updated, externalID)
	return true, nil
}

func (f *fakeAdapter) DeleteEvent(_ context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, externalID string) (bool, error) {
	if err := f.guard.Write(actor, integ, "DeleteEvent"); err != nil {
		return false, err
	}
	if err := f.unavailable(integ); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return true, nil
}

func (f *fakeAdapter) ListBusyIntervals(_ context.Context, actor security.Actor, integ *entity.CalendarIntegration, _ entity.ProviderCredential, from, to time.Time) ([]entity.BusyInterval, error) {
	if ok, err := f.guard.Read(actor, integ, "ListBusyIntervals"); !ok {
		return []entity.BusyInterval{}, err
	}
	if err := f.unavailable(integ); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entity.BusyInterval{}
	for _, iv := range f.busy {
		if entity.Overlaps(iv.Start, iv.End, from, to) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (f *fakeAdapter) IsSlotAvailable(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, start, end time.Time) (bool, error) {
	f.mu.Lock()
	f.checks++
	f.mu.Unlock()
	intervals, err := f.ListBusyIntervals(ctx, actor, integ, cred, start, end)
	if err != nil {
		return false, err
	}
	return entity.SlotAvailable(intervals, start, end), nil
}

func (f *fakeAdapter) Revoke(context.Context, entity.ProviderCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked++
	return nil
}

// ========== collaborators ==========

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueIntegrationSync(ctx context.Context, integrationID uuid.UUID, scheduled bool) error {
	return m.Called(ctx, integrationID, scheduled).Error(0)
}

func (m *mockEnqueuer) EnqueueBookingChanged(ctx context.Context, bookingID uuid.UUID, action string) error {
	return m.Called(ctx, bookingID, action).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyIntegrationDisabled(ctx context.Context, userID, integrationID uuid.UUID, provider, reason string) error {
	return m.Called(ctx, userID, integrationID, provider, reason).Error(0)
}

// ========== harness ==========

type harness struct {
	cfg          *config.Config
	integrations *memIntegrations
	events       *memEvents
	runs         *memRuns
	google       *fakeAdapter
	ical         *fakeAdapter
	locks        cache.Cache
	mr           *miniredis.Miniredis
	notifier     *mockNotifier
	enqueuer     *mockEnqueuer
	vault        *CredentialVault
	registry     IntegrationService
	sync         SyncService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg:          testConfig(),
		integrations: newMemIntegrations(),
		runs:         &memRuns{},
		google:       newFakeAdapter(entity.ProviderGoogle),
		ical:         newFakeAdapter(entity.ProviderICal),
		notifier:     &mockNotifier{},
		enqueuer:     &mockEnqueuer{},
	}
	h.events = newMemEvents(h.integrations)
	h.locks, h.mr = newTestCache(t)

	providers := provider.NewRegistry(h.google, h.ical)
	vault, err := NewCredentialVault(h.cfg, h.integrations, providers, h.locks, h.notifier)
	require.NoError(t, err)
	h.vault = vault
	h.registry = NewIntegrationService(h.cfg, h.integrations, h.events, vault, providers)
	h.sync = NewSyncService(h.cfg, h.integrations, h.events, h.runs, vault, providers, h.locks, h.enqueuer)
	return h
}

// connect stores an active integration with sealed tokens expiring in expiresIn.
func (h *harness) connect(t *testing.T, p entity.ProviderType, owner uuid.UUID, calendarID string, expiresIn time.Duration) *entity.CalendarIntegration {
	t.Helper()
	td := &entity.TokenData{AccessToken: "access-" + calendarID, RefreshToken: "refresh-" + calendarID}
	if p == entity.ProviderICal {
		td = &entity.TokenData{AccessToken: provider.EncodeFeedToken("https://feeds.test/" + calendarID + ".ics")}
	} else {
		exp := time.Now().Add(expiresIn)
		td.ExpiresAt = &exp
	}
	integ, err := h.registry.Connect(context.Background(), security.UserActor(owner), ConnectRequest{
		UserID:   owner,
		Provider: p,
		Tokens:   td,
		Calendar: &entity.CalendarInfo{ID: calendarID, Name: calendarID, Timezone: "UTC"},
	})
	require.NoError(t, err)
	return integ
}

func testBooking(owner uuid.UUID) *bookingEntity.Booking {
	start := time.Date(2030, 5, 1, 14, 0, 0, 0, time.UTC)
	return &bookingEntity.Booking{
		ID:          uuid.New(),
		UserID:      owner,
		ServiceName: "Haircut",
		StartsAt:    start,
		EndsAt:      start.Add(time.Hour),
		ClientName:  "Ada Lovelace",
		ClientEmail: "ada@example.com",
		Reference:   "BK-1001",
		Status:      bookingEntity.BookingStatusConfirmed,
	}
}
