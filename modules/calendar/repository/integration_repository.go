package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
)

const integrationColumns = `id, user_id, service_id, provider, calendar_id, calendar_name, calendar_timezone,
	access_token, refresh_token, token_expires_at, is_active, sync_bookings, sync_availability,
	auto_block_external_events, sync_settings, last_sync_at, sync_error_count, last_sync_error,
	created_at, updated_at`

type IntegrationRepository interface {
	Upsert(ctx context.Context, integ *entity.CalendarIntegration) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error)
	ListDue(ctx context.Context, now time.Time, defaultFrequencyMinutes, limit int) ([]entity.CalendarIntegration, error)
	UpdateSettings(ctx context.Context, integ *entity.CalendarIntegration) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt *time.Time) error
	MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSyncFailure(ctx context.Context, id uuid.UUID, message string) error
	Deactivate(ctx context.Context, id uuid.UUID, reason string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type integrationRepository struct {
	db database.IDatabase
}

func NewIntegrationRepository(db database.IDatabase) IntegrationRepository {
	return &integrationRepository{db: db}
}

// Upsert inserts integ or, when the same user/service/provider/calendar is
// already linked, replaces that row's tokens and reactivates it. integ is
// refreshed from the stored row either way.
func (r *integrationRepository) Upsert(ctx context.Context, integ *entity.CalendarIntegration) error {
	query := `
		INSERT INTO calendar_integrations (
			user_id, service_id, provider, calendar_id, calendar_name, calendar_timezone,
			access_token, refresh_token, token_expires_at, is_active,
			sync_bookings, sync_availability, auto_block_external_events, sync_settings
		) VALUES (
			:user_id, :service_id, :provider, :calendar_id, :calendar_name, :calendar_timezone,
			:access_token, :refresh_token, :token_expires_at, :is_active,
			:sync_bookings, :sync_availability, :auto_block_external_events, :sync_settings
		)
		ON CONFLICT ON CONSTRAINT calendar_integrations_unique_calendar DO UPDATE SET
			calendar_name = EXCLUDED.calendar_name,
			calendar_timezone = EXCLUDED.calendar_timezone,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, calendar_integrations.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = TRUE,
			sync_error_count = 0,
			last_sync_error = NULL,
			updated_at = NOW()
		RETURNING ` + integrationColumns

	rows, err := r.db.NamedQueryContext(ctx, query, integ)
	if err != nil {
		logger.Error("IntegrationRepository:Upsert:Error", "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.StructScan(integ)
	}
	return rows.Err()
}

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE id = $1`
	if err := r.db.GetContext(ctx, &integ, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByID:Error", "error", err, "id", id.String())
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error) {
	var out []entity.CalendarIntegration
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		logger.Error("IntegrationRepository:ListByUser:Error", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *integrationRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarIntegration, error) {
	var out []entity.CalendarIntegration
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE user_id = $1 AND is_active ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		logger.Error("IntegrationRepository:ListActiveByUser:Error", "error", err)
		return nil, err
	}
	return out, nil
}

// ListDue returns active integrations never synced or last synced at least
// their own frequency ago, least recently synced first.
func (r *integrationRepository) ListDue(ctx context.Context, now time.Time, defaultFrequencyMinutes, limit int) ([]entity.CalendarIntegration, error) {
	var out []entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE is_active
		AND (
			last_sync_at IS NULL
			OR last_sync_at <= $1::timestamptz - make_interval(
				mins => COALESCE(NULLIF((sync_settings->>'sync_frequency_minutes')::int, 0), $2)
			)
		)
		ORDER BY last_sync_at NULLS FIRST, created_at
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &out, query, now, defaultFrequencyMinutes, limit); err != nil {
		logger.Error("IntegrationRepository:ListDue:Error", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *integrationRepository) UpdateSettings(ctx context.Context, integ *entity.CalendarIntegration) error {
	query := `
		UPDATE calendar_integrations
		SET sync_bookings = $1, sync_availability = $2, auto_block_external_events = $3,
			sync_settings = $4, is_active = $5, updated_at = NOW()
		WHERE id = $6
	`
	err := r.db.ExecContext(ctx, query,
		integ.SyncBookings, integ.SyncAvailability, integ.AutoBlockExternalEvents,
		integ.SyncSettings, integ.IsActive, integ.ID,
	)
	if err != nil {
		logger.Error("IntegrationRepository:UpdateSettings:Error", "error", err, "id", integ.ID.String())
	}
	return err
}

func (r *integrationRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = $1, refresh_token = COALESCE($2, refresh_token), token_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		logger.Error("IntegrationRepository:UpdateTokens:Error", "error", err, "id", id.String())
	}
	return err
}

func (r *integrationRepository) MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET last_sync_at = $1, sync_error_count = 0, last_sync_error = NULL, updated_at = NOW()
		WHERE id = $2
	`
	return r.db.ExecContext(ctx, query, at, id)
}

func (r *integrationRepository) MarkSyncFailure(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE calendar_integrations
		SET sync_error_count = sync_error_count + 1, last_sync_error = $1, updated_at = NOW()
		WHERE id = $2
	`
	return r.db.ExecContext(ctx, query, message, id)
}

func (r *integrationRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE calendar_integrations
		SET is_active = FALSE, sync_error_count = sync_error_count + 1, last_sync_error = $1, updated_at = NOW()
		WHERE id = $2
	`
	err := r.db.ExecContext(ctx, query, reason, id)
	if err != nil {
		logger.Error("IntegrationRepository:Deactivate:Error", "error", err, "id", id.String())
	}
	return err
}

// Delete removes the integration; its events and sync runs cascade.
func (r *integrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.ExecContext(ctx, `DELETE FROM calendar_integrations WHERE id = $1`, id)
}
