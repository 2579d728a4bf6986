package tasks

import (
	"context"
	"fmt"

	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"

	"github.com/hibiken/asynq"
)

// Handler runs the calendar background jobs.
type Handler struct {
	sync service.SyncService
}

func NewHandler(sync service.SyncService) *Handler {
	return &Handler{sync: sync}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeIntegrationSync, h.HandleIntegrationSync)
	mux.HandleFunc(queue.TypeScheduledSync, h.HandleScheduledSync)
	mux.HandleFunc(queue.TypePurgeEvents, h.HandlePurgeEvents)
}

// HandleIntegrationSync pulls one integration. Provider failures are recorded
// on the integration, so only infrastructure errors are retried.
func (h *Handler) HandleIntegrationSync(ctx context.Context, t *asynq.Task) error {
	p, err := queue.DecodeIntegrationSync(t)
	if err != nil {
		return err
	}
	logger.Debug("CalendarTasks:HandleIntegrationSync:Start", "integration_id", p.IntegrationID.String())
	if err := h.sync.SyncIntegration(ctx, p.IntegrationID, p.Scheduled); err != nil {
		return fmt.Errorf("sync integration %s: %w", p.IntegrationID, err)
	}
	return nil
}

func (h *Handler) HandleScheduledSync(ctx context.Context, _ *asynq.Task) error {
	_, err := h.sync.ProcessScheduledSyncs(ctx)
	return err
}

func (h *Handler) HandlePurgeEvents(ctx context.Context, _ *asynq.Task) error {
	_, err := h.sync.PurgeStaleEvents(ctx)
	return err
}
