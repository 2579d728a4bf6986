package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/entity"

	"github.com/google/uuid"
)

// FlowContextRepository keeps in-flight OAuth authorizations in the cache.
type FlowContextRepository interface {
	Save(ctx context.Context, fc *entity.FlowContext) error
	// Consume returns the context and removes it, so a state works once.
	// It returns (nil, nil) when the nonce is unknown or already used.
	Consume(ctx context.Context, nonce string) (*entity.FlowContext, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type flowContextRepository struct {
	cache cache.Cache
	now   func() time.Time
}

func NewFlowContextRepository(c cache.Cache) FlowContextRepository {
	return &flowContextRepository{cache: c, now: time.Now}
}

func stateKey(nonce string) string {
	return fmt.Sprintf(constants.CacheKeyOAuthState, nonce)
}

func userIndexKey(userID uuid.UUID) string {
	return fmt.Sprintf(constants.CacheKeyOAuthUserIndex, userID.String())
}

func (r *flowContextRepository) Save(ctx context.Context, fc *entity.FlowContext) error {
	ttl := fc.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.NewAppError(errors.ErrInvalidInput, "flow context is already expired", nil)
	}

	payload, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, stateKey(fc.Nonce), string(payload), ttl); err != nil {
		logger.Error("FlowContextRepository:Save:Set", "user_id", fc.UserID.String(), "error", err)
		return err
	}
	if err := r.cache.SAdd(ctx, userIndexKey(fc.UserID), ttl, fc.Nonce); err != nil {
		// The index only serves bulk cleanup; the state itself is usable.
		logger.Warn("FlowContextRepository:Save:Index", "user_id", fc.UserID.String(), "error", err)
	}
	return nil
}

func (r *flowContextRepository) Consume(ctx context.Context, nonce string) (*entity.FlowContext, error) {
	raw, err := r.cache.GetDel(ctx, stateKey(nonce))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		logger.Error("FlowContextRepository:Consume:GetDel", "error", err)
		return nil, err
	}

	var fc entity.FlowContext
	if err := json.Unmarshal([]byte(raw), &fc); err != nil {
		logger.Warn("FlowContextRepository:Consume:Corrupt", "error", err)
		return nil, nil
	}
	if err := r.cache.SRem(ctx, userIndexKey(fc.UserID), nonce); err != nil {
		logger.Warn("FlowContextRepository:Consume:Index", "user_id", fc.UserID.String(), "error", err)
	}
	if fc.Expired(r.now()) {
		return nil, nil
	}
	return &fc, nil
}

// DeleteByUser drops every pending authorization for the user.
func (r *flowContextRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	nonces, err := r.cache.SMembers(ctx, userIndexKey(userID))
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(nonces)+1)
	for _, n := range nonces {
		keys = append(keys, stateKey(n))
	}
	keys = append(keys, userIndexKey(userID))
	if err := r.cache.Del(ctx, keys...); err != nil {
		return 0, err
	}
	return len(nonces), nil
}
