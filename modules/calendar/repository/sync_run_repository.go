package repository

import (
	"context"

	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *entity.SyncRun) error
	ListRecent(ctx context.Context, integrationID uuid.UUID, limit int) ([]entity.SyncRun, error)
}

type syncRunRepository struct {
	db database.IDatabase
}

func NewSyncRunRepository(db database.IDatabase) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *entity.SyncRun) error {
	query := `
		INSERT INTO calendar_sync_runs (integration_id, status, events_seen, events_upserted, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		run.IntegrationID, run.Status, run.EventsSeen, run.EventsUpserted, run.Error, run.StartedAt, run.FinishedAt,
	).Scan(&run.ID)
	if err != nil {
		logger.Error("SyncRunRepository:Create:Error", "error", err, "integration_id", run.IntegrationID.String())
	}
	return err
}

func (r *syncRunRepository) ListRecent(ctx context.Context, integrationID uuid.UUID, limit int) ([]entity.SyncRun, error) {
	var out []entity.SyncRun
	query := `
		SELECT id, integration_id, status, events_seen, events_upserted, error, started_at, finished_at
		FROM calendar_sync_runs
		WHERE integration_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &out, query, integrationID, limit); err != nil {
		return nil, err
	}
	return out, nil
}
