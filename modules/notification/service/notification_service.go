package service

import (
	"context"
	"fmt"
	"time"

	coreEntity "github.com/SunnyC0d3/booking-system-sub009/core/entity"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/params"
	"github.com/SunnyC0d3/booking-system-sub009/modules/notification/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/notification/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/notification/repository"

	"github.com/google/uuid"
)

type NotificationService struct {
	repo *repository.NotificationRepository
}

func NewNotificationService(repo *repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) Create(ctx context.Context, req *dto.CreateNotificationRequest) error {
	now := time.Now()
	notif := &entity.Notification{
		UserID:    req.UserID,
		BookingID: req.BookingID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		Data:      coreEntity.JSONB(req.Data),
		Status:    entity.StatusPending,
		IsRead:    false,
		BaseEntity: coreEntity.BaseEntity{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return s.repo.Create(ctx, notif)
}

func (s *NotificationService) GetMyNotifications(ctx context.Context, userID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return s.repo.GetByUserID(ctx, userID, queryParams)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []string) error {
	return s.repo.MarkAsRead(ctx, userID, ids)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) CancelForBooking(ctx context.Context, bookingID uuid.UUID) error {
	n, err := s.repo.CancelPendingForBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	logger.Info("NotificationService:CancelForBooking", "booking_id", bookingID.String(), "cancelled", n)
	return nil
}

func (s *NotificationService) RescheduleForBooking(ctx context.Context, bookingID uuid.UUID, startsAt time.Time) error {
	n, err := s.repo.ReschedulePendingForBooking(ctx, bookingID, startsAt)
	if err != nil {
		return err
	}
	logger.Info("NotificationService:RescheduleForBooking", "booking_id", bookingID.String(), "rescheduled", n)
	return nil
}

// NotifyIntegrationDisabled tells the owner their calendar stopped syncing and needs reconnecting.
func (s *NotificationService) NotifyIntegrationDisabled(ctx context.Context, userID, integrationID uuid.UUID, provider, reason string) error {
	return s.Create(ctx, &dto.CreateNotificationRequest{
		UserID:  userID,
		Title:   "Calendar disconnected",
		Message: fmt.Sprintf("Your %s calendar could not be refreshed and has been paused. Reconnect it to resume syncing.", provider),
		Type:    entity.TypeIntegrationDisabled,
		Data: map[string]interface{}{
			"integration_id": integrationID.String(),
			"provider":       provider,
			"reason":         reason,
		},
	})
}
