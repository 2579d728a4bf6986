package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SyncResult aggregates a fan-out across integrations. One integration
// failing never aborts the others.
type SyncResult struct {
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

func (r *SyncResult) record(integ *entity.CalendarIntegration, err error) {
	if err == nil {
		r.Synced++
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s (%s): %s", integ.Provider, integ.CalendarName, userMessage(err)))
}

// Conflict is an external busy interval overlapping a requested slot.
type Conflict struct {
	IntegrationID uuid.UUID           `json:"integration_id"`
	Provider      entity.ProviderType `json:"provider"`
	Title         string              `json:"title,omitempty"`
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end"`
}

type AvailabilityResult struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

type SyncService interface {
	PushBookingToCalendars(ctx context.Context, actor security.Actor, b *bookingEntity.Booking) *SyncResult
	RemoveBookingFromCalendars(ctx context.Context, actor security.Actor, b *bookingEntity.Booking) *SyncResult
	PullExternalEvents(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration) (*entity.SyncRun, error)
	CheckAvailability(ctx context.Context, actor security.Actor, userID uuid.UUID, serviceID *uuid.UUID, start, end time.Time) (*AvailabilityResult, error)
	ProcessScheduledSyncs(ctx context.Context) (int, error)
	SyncIntegration(ctx context.Context, integrationID uuid.UUID, scheduled bool) error
	SyncNow(ctx context.Context, actor security.Actor, integrationID uuid.UUID) (*entity.SyncRun, error)
	EnqueueUserSyncs(ctx context.Context, actor security.Actor, userID uuid.UUID) (int, error)
	RecentRuns(ctx context.Context, actor security.Actor, integrationID uuid.UUID, limit int) ([]entity.SyncRun, error)
	PurgeStaleEvents(ctx context.Context) (int64, error)
}

type syncService struct {
	cfg          *config.Config
	integrations repository.IntegrationRepository
	events       repository.EventRepository
	runs         repository.SyncRunRepository
	vault        *CredentialVault
	providers    *provider.Registry
	locks        cache.Cache
	enqueuer     queue.Enqueuer

	now func() time.Time
	// fanout caps concurrent provider calls within one request.
	fanout int
}

func NewSyncService(
	cfg *config.Config,
	integrations repository.IntegrationRepository,
	events repository.EventRepository,
	runs repository.SyncRunRepository,
	vault *CredentialVault,
	providers *provider.Registry,
	locks cache.Cache,
	enqueuer queue.Enqueuer,
) SyncService {
	return &syncService{
		cfg:          cfg,
		integrations: integrations,
		events:       events,
		runs:         runs,
		vault:        vault,
		providers:    providers,
		locks:        locks,
		enqueuer:     enqueuer,
		now:          time.Now,
		fanout:       4,
	}
}

// eachIntegration runs fn for every integration with bounded concurrency and
// collects per-integration errors in input order.
func (s *syncService) eachIntegration(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(s.fanout)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *syncService) PushBookingToCalendars(ctx context.Context, actor security.Actor, b *bookingEntity.Booking) *SyncResult {
	result := &SyncResult{Errors: []string{}}

	active, err := s.integrations.ListActiveByUser(ctx, b.UserID)
	if err != nil {
		logger.Error("SyncService:PushBookingToCalendars:ListActive", "booking_id", b.ID.String(), "error", err)
		result.Failed++
		result.Errors = append(result.Errors, "could not load calendar integrations")
		return result
	}

	var targets []entity.CalendarIntegration
	for _, integ := range active {
		if integ.SyncBookings && integ.AppliesToService(b.ServiceID) {
			targets = append(targets, integ)
		}
	}

	errs := s.eachIntegration(ctx, len(targets), func(ctx context.Context, i int) error {
		return s.pushOne(ctx, actor, &targets[i], b)
	})
	for i := range targets {
		if errs[i] != nil {
			logger.Warn("SyncService:PushBookingToCalendars:IntegrationFailed",
				"booking_id", b.ID.String(), "integration_id", targets[i].ID.String(), "error", errs[i])
		}
		result.record(&targets[i], errs[i])
	}

	logger.Info("SyncService:PushBookingToCalendars:Done",
		"booking_id", b.ID.String(), "synced", result.Synced, "failed", result.Failed)
	return result
}

func (s *syncService) pushOne(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, b *bookingEntity.Booking) error {
	adapter, err := s.providers.Get(integ.Provider)
	if err != nil {
		return err
	}
	cred, err := s.vault.Credential(ctx, integ)
	if err != nil {
		return err
	}

	existing, err := s.events.FindByBooking(ctx, integ.ID, b.ID)
	if err != nil {
		return err
	}

	externalID := ""
	if existing != nil {
		updated, err := adapter.UpdateEvent(ctx, actor, integ, cred, b, existing.ExternalEventID)
		if err != nil {
			return err
		}
		if updated {
			externalID = existing.ExternalEventID
		} else {
			// The remote copy is gone; recreate it under a new id.
			if err := s.events.Delete(ctx, existing.ID); err != nil {
				return err
			}
		}
	}
	if externalID == "" {
		externalID, err = adapter.CreateEvent(ctx, actor, integ, cred, b)
		if err != nil {
			return err
		}
		if externalID == "" {
			return errors.NewAppError(errors.ErrProviderUnavailable, "calendar did not return an event id", nil)
		}
	}

	bookingID := b.ID
	mirror := &entity.CalendarEvent{
		IntegrationID:   integ.ID,
		BookingID:       &bookingID,
		ExternalEventID: externalID,
		Title:           provider.RenderTitle(integ.SyncSettings.EventTitleTemplate, b),
		StartsAt:        b.StartsAt.UTC(),
		EndsAt:          b.EndsAt.UTC(),
		BlocksBooking:   true,
		BlockType:       entity.BlockTypeBooking,
		LastSyncedAt:    s.now().UTC(),
	}
	return s.events.Upsert(ctx, mirror)
}

func (s *syncService) RemoveBookingFromCalendars(ctx context.Context, actor security.Actor, b *bookingEntity.Booking) *SyncResult {
	result := &SyncResult{Errors: []string{}}

	mirrors, err := s.events.ListByBooking(ctx, b.ID)
	if err != nil {
		logger.Error("SyncService:RemoveBookingFromCalendars:ListByBooking", "booking_id", b.ID.String(), "error", err)
		result.Failed++
		result.Errors = append(result.Errors, "could not load synced events")
		return result
	}

	var (
		targets []entity.CalendarIntegration
		events  []entity.CalendarEvent
	)
	for _, ev := range mirrors {
		if ev.BlockType != entity.BlockTypeBooking {
			continue
		}
		integ, err := s.integrations.GetByID(ctx, ev.IntegrationID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, "could not load calendar integration")
			continue
		}
		if integ == nil || !integ.IsActive {
			// Nothing remote can be reached; drop the local mirror only.
			if err := s.events.Delete(ctx, ev.ID); err != nil {
				logger.Warn("SyncService:RemoveBookingFromCalendars:DeleteMirror", "event_id", ev.ID.String(), "error", err)
			}
			continue
		}
		targets = append(targets, *integ)
		events = append(events, ev)
	}

	errs := s.eachIntegration(ctx, len(targets), func(ctx context.Context, i int) error {
		return s.removeOne(ctx, actor, &targets[i], &events[i])
	})
	for i := range targets {
		if errs[i] != nil {
			logger.Warn("SyncService:RemoveBookingFromCalendars:IntegrationFailed",
				"booking_id", b.ID.String(), "integration_id", targets[i].ID.String(), "error", errs[i])
		}
		result.record(&targets[i], errs[i])
	}

	logger.Info("SyncService:RemoveBookingFromCalendars:Done",
		"booking_id", b.ID.String(), "synced", result.Synced, "failed", result.Failed)
	return result
}

func (s *syncService) removeOne(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, ev *entity.CalendarEvent) error {
	adapter, err := s.providers.Get(integ.Provider)
	if err != nil {
		return err
	}
	cred, err := s.vault.Credential(ctx, integ)
	if err != nil {
		return err
	}
	if _, err := adapter.DeleteEvent(ctx, actor, integ, cred, ev.ExternalEventID); err != nil {
		return err
	}
	return s.events.Delete(ctx, ev.ID)
}

// PullExternalEvents mirrors the integration's busy intervals inside its sync
// window. Re-pulling an unchanged feed leaves the mirror unchanged.
func (s *syncService) PullExternalEvents(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration) (*entity.SyncRun, error) {
	// An empty listing prunes mirrors, so a denied read must not get that far.
	if !security.CanManageIntegration(actor, integ.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to sync this calendar integration", nil)
	}

	started := s.now().UTC()
	run := &entity.SyncRun{IntegrationID: integ.ID, StartedAt: started}

	seen, upserted, err := s.pull(ctx, actor, integ, started)
	run.EventsSeen, run.EventsUpserted = seen, upserted
	run.FinishedAt = s.now().UTC()

	if err != nil {
		msg := userMessage(err)
		run.Status = entity.SyncRunFailed
		run.Error = &msg
		logger.Warn("SyncService:PullExternalEvents:Failed", "integration_id", integ.ID.String(), "error", err)
		// A refresh failure has already been recorded by the vault.
		if !errors.HasCode(err, errors.ErrTokenExpiredNoRefresh) {
			if markErr := s.integrations.MarkSyncFailure(ctx, integ.ID, msg); markErr != nil {
				logger.Error("SyncService:PullExternalEvents:MarkFailure", "integration_id", integ.ID.String(), "error", markErr)
			}
		}
	} else {
		run.Status = entity.SyncRunSucceeded
		if markErr := s.integrations.MarkSyncSuccess(ctx, integ.ID, run.FinishedAt); markErr != nil {
			logger.Error("SyncService:PullExternalEvents:MarkSuccess", "integration_id", integ.ID.String(), "error", markErr)
		} else {
			integ.LastSyncAt = &run.FinishedAt
			integ.SyncErrorCount = 0
			integ.LastSyncError = nil
		}
	}

	if runErr := s.runs.Create(ctx, run); runErr != nil {
		logger.Warn("SyncService:PullExternalEvents:RecordRun", "integration_id", integ.ID.String(), "error", runErr)
	}

	logger.Info("SyncService:PullExternalEvents:Done",
		"integration_id", integ.ID.String(),
		"status", string(run.Status),
		"seen", seen,
		"upserted", upserted,
	)
	return run, err
}

func (s *syncService) pull(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, now time.Time) (int, int, error) {
	adapter, err := s.providers.Get(integ.Provider)
	if err != nil {
		return 0, 0, err
	}
	cred, err := s.vault.Credential(ctx, integ)
	if err != nil {
		return 0, 0, err
	}

	from, to := integ.SyncWindow(now, constants.DefaultSyncPastDays, constants.DefaultSyncFutureDays)
	intervals, err := adapter.ListBusyIntervals(ctx, actor, integ, cred, from, to)
	if err != nil {
		return 0, 0, err
	}

	keep := make([]string, 0, len(intervals))
	upserted := 0
	for _, iv := range intervals {
		if iv.ID == "" {
			continue
		}
		ev := &entity.CalendarEvent{
			IntegrationID:   integ.ID,
			ExternalEventID: iv.ID,
			Title:           iv.Title,
			StartsAt:        iv.Start.UTC(),
			EndsAt:          iv.End.UTC(),
			IsAllDay:        iv.AllDay,
			BlocksBooking:   iv.Blocks(),
			BlockType:       entity.BlockTypeExternal,
			LastSyncedAt:    now,
		}
		if err := s.events.Upsert(ctx, ev); err != nil {
			return len(intervals), upserted, err
		}
		keep = append(keep, iv.ID)
		upserted++
	}

	removed, err := s.events.DeleteMissingExternal(ctx, integ.ID, from, to, keep)
	if err != nil {
		return len(intervals), upserted, err
	}
	if removed > 0 {
		logger.Debug("SyncService:Pull:Pruned", "integration_id", integ.ID.String(), "removed", removed)
	}
	return len(intervals), upserted, nil
}

// CheckAvailability asks every auto-blocking integration whether the slot is
// busy. Provider errors exclude that provider instead of blocking the slot.
// Busy intervals are only listed for integrations that report the slot taken.
func (s *syncService) CheckAvailability(ctx context.Context, actor security.Actor, userID uuid.UUID, serviceID *uuid.UUID, start, end time.Time) (*AvailabilityResult, error) {
	if !end.After(start) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end must be after start", nil)
	}

	active, err := s.integrations.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integrations", err)
	}

	var targets []entity.CalendarIntegration
	for _, integ := range active {
		if integ.AutoBlockExternalEvents && integ.AppliesToService(serviceID) {
			targets = append(targets, integ)
		}
	}

	var (
		mu        sync.Mutex
		conflicts = []Conflict{}
	)
	errs := s.eachIntegration(ctx, len(targets), func(ctx context.Context, i int) error {
		integ := &targets[i]
		adapter, err := s.providers.Get(integ.Provider)
		if err != nil {
			return err
		}
		cred, err := s.vault.Credential(ctx, integ)
		if err != nil {
			return err
		}
		free, err := adapter.IsSlotAvailable(ctx, actor, integ, cred, start, end)
		if err != nil || free {
			return err
		}
		intervals, err := adapter.ListBusyIntervals(ctx, actor, integ, cred, start, end)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		for _, iv := range intervals {
			if iv.Blocks() && entity.Overlaps(iv.Start, iv.End, start, end) {
				conflicts = append(conflicts, Conflict{
					IntegrationID: integ.ID,
					Provider:      integ.Provider,
					Title:         iv.Title,
					Start:         iv.Start,
					End:           iv.End,
				})
			}
		}
		return nil
	})
	for i, err := range errs {
		if err != nil {
			logger.Warn("SyncService:CheckAvailability:ProviderSkipped",
				"integration_id", targets[i].ID.String(), "provider", targets[i].Provider.String(), "error", err)
		}
	}

	return &AvailabilityResult{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// ProcessScheduledSyncs enqueues one sync task per due integration.
func (s *syncService) ProcessScheduledSyncs(ctx context.Context) (int, error) {
	now := s.now().UTC()
	batch := s.cfg.Sync.BatchSize
	if batch <= 0 {
		batch = 50
	}

	due, err := s.integrations.ListDue(ctx, now, s.cfg.Sync.DefaultFrequencyMinutes, batch)
	if err != nil {
		logger.Error("SyncService:ProcessScheduledSyncs:ListDue", "error", err)
		return 0, err
	}

	enqueued := 0
	for i := range due {
		if !due[i].DueForSync(now, s.cfg.Sync.DefaultFrequencyMinutes) {
			continue
		}
		if err := s.enqueuer.EnqueueIntegrationSync(ctx, due[i].ID, true); err != nil {
			logger.Warn("SyncService:ProcessScheduledSyncs:Enqueue", "integration_id", due[i].ID.String(), "error", err)
			continue
		}
		enqueued++
	}

	logger.Info("SyncService:ProcessScheduledSyncs:Done", "due", len(due), "enqueued", enqueued)
	return enqueued, nil
}

// SyncIntegration is the background job for one integration. Per-integration
// failures are recorded on the integration, not returned. A scheduled job is
// dropped when the integration synced after it was enqueued.
func (s *syncService) SyncIntegration(ctx context.Context, integrationID uuid.UUID, scheduled bool) error {
	unlock, acquired, err := s.lock(ctx, integrationID)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("SyncService:SyncIntegration:AlreadyRunning", "integration_id", integrationID.String())
		return nil
	}
	defer unlock()

	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return err
	}
	if integ == nil || !integ.IsActive {
		logger.Info("SyncService:SyncIntegration:Skipped", "integration_id", integrationID.String())
		return nil
	}
	if scheduled && !integ.DueForSync(s.now().UTC(), s.cfg.Sync.DefaultFrequencyMinutes) {
		logger.Info("SyncService:SyncIntegration:NotDue", "integration_id", integrationID.String())
		return nil
	}

	_, _ = s.PullExternalEvents(ctx, security.SystemActor(), integ)
	return nil
}

func (s *syncService) SyncNow(ctx context.Context, actor security.Actor, integrationID uuid.UUID) (*entity.SyncRun, error) {
	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
	}
	if !security.CanManageIntegration(actor, integ.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to sync this calendar integration", nil)
	}
	if !integ.IsActive {
		return nil, errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "calendar integration is disabled and must be reconnected", nil)
	}

	unlock, acquired, err := s.lock(ctx, integrationID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to acquire sync lock", err)
	}
	if !acquired {
		return nil, errors.NewAppError(errors.ErrAlreadyExists, "a sync for this calendar is already running", nil)
	}
	defer unlock()

	return s.PullExternalEvents(ctx, actor, integ)
}

func (s *syncService) lock(ctx context.Context, integrationID uuid.UUID) (func(), bool, error) {
	key := fmt.Sprintf(constants.CacheKeySyncLock, integrationID)
	token, ok, err := s.locks.TryLock(ctx, key, constants.SyncLockTTL)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		if err := s.locks.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Warn("SyncService:Unlock", "integration_id", integrationID.String(), "error", err)
		}
	}, true, nil
}

func (s *syncService) EnqueueUserSyncs(ctx context.Context, actor security.Actor, userID uuid.UUID) (int, error) {
	if !security.CanManageIntegration(actor, userID) {
		return 0, errors.NewAppError(errors.ErrForbidden, "not allowed to sync these calendar integrations", nil)
	}
	active, err := s.integrations.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integrations", err)
	}

	enqueued := 0
	for _, integ := range active {
		if err := s.enqueuer.EnqueueIntegrationSync(ctx, integ.ID, false); err != nil {
			logger.Warn("SyncService:EnqueueUserSyncs:Enqueue", "integration_id", integ.ID.String(), "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *syncService) RecentRuns(ctx context.Context, actor security.Actor, integrationID uuid.UUID, limit int) ([]entity.SyncRun, error) {
	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
	}
	if !security.CanViewIntegration(actor, integ.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to view this calendar integration", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, integrationID, limit)
}

// PurgeStaleEvents drops mirrored events that ended before the retention window.
func (s *syncService) PurgeStaleEvents(ctx context.Context) (int64, error) {
	days := s.cfg.Sync.RetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	n, err := s.events.PurgeEndedBefore(ctx, cutoff)
	if err != nil {
		logger.Error("SyncService:PurgeStaleEvents", "error", err)
		return 0, err
	}
	logger.Info("SyncService:PurgeStaleEvents:Done", "removed", n, "cutoff", cutoff)
	return n, nil
}

// userMessage prefers the AppError message so provider internals stay out of
// user-facing summaries.
func userMessage(err error) string {
	var ae *errors.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
