package repository

import (
	"context"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/params"
	"github.com/SunnyC0d3/booking-system-sub009/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type NotificationRepository struct {
	db database.IDatabase
}

func NewNotificationRepository(db database.IDatabase) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query := `
		INSERT INTO notifications (title, message, type, data, user_id, booking_id, status, scheduled_for, is_read, created_at, updated_at)
		VALUES (:title, :message, :type, :data, :user_id, :booking_id, :status, :scheduled_for, :is_read, :created_at, :updated_at)
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, notification)
	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&notification.ID)
	}
	return nil
}

func (r *NotificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, params params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	baseQuery := `FROM notifications WHERE user_id = $1`

	var totalItems int
	err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, userID)
	if err != nil {
		logger.Error("NotificationRepository:GetByUserID:Count:Error", "error", err)
		return nil, err
	}

	query := `
		SELECT id, user_id, booking_id, title, message, type, data, status, scheduled_for, is_read, created_at, updated_at
		` + baseQuery + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var notifications []entity.Notification
	err = r.db.SelectContext(ctx, &notifications, query, userID, params.PageSize, params.Offset())
	if err != nil {
		logger.Error("NotificationRepository:GetByUserID:Select:Error", "error", err)
		return nil, err
	}

	return &entity.PaginatedNotificationEntity{
		Items:      notifications,
		TotalItems: totalItems,
		PageNumber: params.PageNumber,
		PageSize:   params.PageSize,
	}, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE notifications SET is_read = true WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return err
	}

	query = r.db.SQLx().Rebind(query)
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE user_id = $1`, userID)
	if err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "error", err)
	}
	return err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID)
	if err != nil {
		logger.Error("NotificationRepository:CountUnread:Error", "error", err)
		return 0, err
	}
	return count, nil
}

// CancelPendingForBooking stops every not yet delivered notification of a booking.
func (r *NotificationRepository) CancelPendingForBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	res, err := r.db.ExecResultContext(ctx, `
		UPDATE notifications SET status = $2, updated_at = NOW()
		WHERE booking_id = $1 AND status = $3
	`, bookingID, entity.StatusCancelled, entity.StatusPending)
	if err != nil {
		logger.Error("NotificationRepository:CancelPendingForBooking:Error", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}

// ReschedulePendingForBooking moves pending notifications relative to the new
// start, keeping each one's offset_minutes lead time.
func (r *NotificationRepository) ReschedulePendingForBooking(ctx context.Context, bookingID uuid.UUID, startsAt time.Time) (int64, error) {
	res, err := r.db.ExecResultContext(ctx, `
		UPDATE notifications
		SET scheduled_for = $2::timestamptz - make_interval(mins => COALESCE((data->>'offset_minutes')::int, 0)),
			updated_at = NOW()
		WHERE booking_id = $1 AND status = $3 AND scheduled_for IS NOT NULL
	`, bookingID, startsAt, entity.StatusPending)
	if err != nil {
		logger.Error("NotificationRepository:ReschedulePendingForBooking:Error", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}
