package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeIntegrationSync = "calendar:integration_sync"
	TypeScheduledSync   = "calendar:scheduled_sync"
	TypePurgeEvents     = "calendar:purge_events"
	TypeBookingChanged  = "booking:changed"

	QueueCalendar = "calendar"
	QueueDefault  = "default"
)

const (
	BookingActionUpserted    = "upserted"
	BookingActionRescheduled = "rescheduled"
	BookingActionCancelled   = "cancelled"
)

type IntegrationSyncPayload struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	// Scheduled jobs re-check that the integration is still due before pulling.
	Scheduled bool `json:"scheduled,omitempty"`
}

type BookingChangedPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
	Action    string    `json:"action"`
}

// Enqueuer is the producer side used by services.
type Enqueuer interface {
	EnqueueIntegrationSync(ctx context.Context, integrationID uuid.UUID, scheduled bool) error
	EnqueueBookingChanged(ctx context.Context, bookingID uuid.UUID, action string) error
}

type Client struct {
	client *asynq.Client
	// uniqueFor bounds how long a duplicate sync for the same integration is rejected.
	uniqueFor time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg)), uniqueFor: 10 * time.Minute}
}

func (c *Client) EnqueueIntegrationSync(ctx context.Context, integrationID uuid.UUID, scheduled bool) error {
	payload, err := json.Marshal(IntegrationSyncPayload{IntegrationID: integrationID, Scheduled: scheduled})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeIntegrationSync, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueCalendar),
		asynq.Unique(c.uniqueFor),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Debug("Queue:EnqueueIntegrationSync:AlreadyQueued", "integration_id", integrationID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue integration sync: %w", err)
	}
	return nil
}

func (c *Client) EnqueueBookingChanged(ctx context.Context, bookingID uuid.UUID, action string) error {
	payload, err := json.Marshal(BookingChangedPayload{BookingID: bookingID, Action: action})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, asynq.NewTask(TypeBookingChanged, payload),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("enqueue booking changed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func DecodeIntegrationSync(t *asynq.Task) (IntegrationSyncPayload, error) {
	var p IntegrationSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}

func DecodeBookingChanged(t *asynq.Task) (BookingChangedPayload, error) {
	var p BookingChangedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}
