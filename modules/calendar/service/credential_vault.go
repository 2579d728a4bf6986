package service

import (
	"context"
	"fmt"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// OwnerNotifier receives alerts for integration owners.
type OwnerNotifier interface {
	NotifyIntegrationDisabled(ctx context.Context, userID, integrationID uuid.UUID, provider, reason string) error
}

// EncryptedTokens is TokenData with the secret fields sealed.
type EncryptedTokens struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scope        string
}

// CredentialVault seals tokens at rest and hands adapters a usable credential,
// refreshing OAuth access tokens shortly before they expire.
type CredentialVault struct {
	cipher        *security.Cipher
	repo          repository.IntegrationRepository
	providers     *provider.Registry
	locks         cache.Cache
	notifier      OwnerNotifier
	maxErrorCount int

	group singleflight.Group
	now   func() time.Time
	// lockWait bounds how long a caller waits for another process's refresh.
	lockWait time.Duration
}

func NewCredentialVault(
	cfg *config.Config,
	repo repository.IntegrationRepository,
	providers *provider.Registry,
	locks cache.Cache,
	notifier OwnerNotifier,
) (*CredentialVault, error) {
	cipher, err := security.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrConfiguration, "invalid credential encryption key", err)
	}
	maxErrors := cfg.Sync.MaxErrorCount
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &CredentialVault{
		cipher:        cipher,
		repo:          repo,
		providers:     providers,
		locks:         locks,
		notifier:      notifier,
		maxErrorCount: maxErrors,
		now:           time.Now,
		lockWait:      5 * time.Second,
	}, nil
}

// Encrypt seals the access and refresh tokens; expiry and scope pass through.
func (v *CredentialVault) Encrypt(td *entity.TokenData) (*EncryptedTokens, error) {
	access, err := v.cipher.Encrypt(td.AccessToken)
	if err != nil {
		return nil, err
	}
	out := &EncryptedTokens{AccessToken: access, ExpiresAt: td.ExpiresAt, Scope: td.Scope}
	if td.RefreshToken != "" {
		refresh, err := v.cipher.Encrypt(td.RefreshToken)
		if err != nil {
			return nil, err
		}
		out.RefreshToken = &refresh
	}
	return out, nil
}

func (v *CredentialVault) Decrypt(integ *entity.CalendarIntegration) (*entity.TokenData, error) {
	access, err := v.cipher.Decrypt(integ.AccessToken)
	if err != nil {
		logger.Error("CredentialVault:Decrypt:AccessToken", "integration_id", integ.ID.String(), "error", err)
		return nil, errors.NewAppError(errors.ErrConfiguration, "stored calendar credential cannot be decrypted", err)
	}
	td := &entity.TokenData{AccessToken: access, ExpiresAt: integ.TokenExpiresAt}
	if integ.RefreshToken != nil && *integ.RefreshToken != "" {
		refresh, err := v.cipher.Decrypt(*integ.RefreshToken)
		if err != nil {
			logger.Error("CredentialVault:Decrypt:RefreshToken", "integration_id", integ.ID.String(), "error", err)
			return nil, errors.NewAppError(errors.ErrConfiguration, "stored calendar credential cannot be decrypted", err)
		}
		td.RefreshToken = refresh
	}
	return td, nil
}

// Credential returns the decrypted credential an adapter needs for integ.
func (v *CredentialVault) Credential(ctx context.Context, integ *entity.CalendarIntegration) (entity.ProviderCredential, error) {
	switch integ.Provider {
	case entity.ProviderICal:
		td, err := v.Decrypt(integ)
		if err != nil {
			return nil, err
		}
		feedURL, err := provider.DecodeFeedToken(td.AccessToken)
		if err != nil {
			return nil, err
		}
		return entity.FeedCredential{URL: feedURL}, nil
	case entity.ProviderGoogle:
		access, err := v.GetValidAccessToken(ctx, integ)
		if err != nil {
			return nil, err
		}
		cred := entity.OAuthCredential{AccessToken: access, Expiry: integ.TokenExpiresAt}
		if td, err := v.Decrypt(integ); err == nil {
			cred.RefreshToken = td.RefreshToken
		}
		return cred, nil
	}
	return nil, errors.NewAppError(errors.ErrUnsupportedProvider, fmt.Sprintf("unsupported calendar provider %q", integ.Provider), nil)
}

func (v *CredentialVault) needsRefresh(integ *entity.CalendarIntegration) bool {
	if integ.Provider == entity.ProviderICal || integ.TokenExpiresAt == nil {
		return false
	}
	return !v.now().Add(constants.TokenRefreshBuffer).Before(*integ.TokenExpiresAt)
}

// GetValidAccessToken returns a plaintext access token for integ, refreshing
// it when it expires within the refresh buffer. Concurrent callers for the
// same integration share one refresh, in process and across processes.
func (v *CredentialVault) GetValidAccessToken(ctx context.Context, integ *entity.CalendarIntegration) (string, error) {
	if !integ.IsActive {
		return "", errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "calendar integration is disabled and must be reconnected", nil)
	}
	if !v.needsRefresh(integ) {
		td, err := v.Decrypt(integ)
		if err != nil {
			return "", err
		}
		return td.AccessToken, nil
	}

	// Shared refreshes run detached from the cancellation of the caller that started them.
	res, err, _ := v.group.Do(integ.ID.String(), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RefreshTimeout)
		defer cancel()
		return v.refresh(refreshCtx, integ)
	})
	if err != nil {
		return "", err
	}
	fresh := res.(*entity.CalendarIntegration)
	integ.AccessToken = fresh.AccessToken
	integ.RefreshToken = fresh.RefreshToken
	integ.TokenExpiresAt = fresh.TokenExpiresAt

	td, err := v.Decrypt(integ)
	if err != nil {
		return "", err
	}
	return td.AccessToken, nil
}

func (v *CredentialVault) refresh(ctx context.Context, integ *entity.CalendarIntegration) (*entity.CalendarIntegration, error) {
	lockKey := fmt.Sprintf(constants.CacheKeyRefreshLock, integ.ID)
	token, acquired, err := v.locks.TryLock(ctx, lockKey, constants.RefreshLockTTL)
	if err != nil {
		logger.Warn("CredentialVault:Refresh:LockUnavailable", "integration_id", integ.ID.String(), "error", err)
	}
	if err == nil && !acquired {
		return v.waitForRefresh(ctx, integ)
	}
	if acquired {
		defer func() {
			if err := v.locks.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				logger.Warn("CredentialVault:Refresh:UnlockFailed", "integration_id", integ.ID.String(), "error", err)
			}
		}()
	}

	// Another process may have refreshed between our read and the lock.
	current, err := v.repo.GetByID(ctx, integ.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
	}
	if !v.needsRefresh(current) {
		return current, nil
	}

	td, err := v.Decrypt(current)
	if err != nil {
		return nil, err
	}
	adapter, err := v.providers.Get(current.Provider)
	if err != nil {
		return nil, err
	}

	logger.Info("CredentialVault:Refresh:Start", "integration_id", current.ID.String(), "provider", current.Provider.String())
	fresh, err := adapter.Refresh(ctx, td.RefreshToken)
	if err != nil {
		return nil, v.refreshFailed(ctx, current, err)
	}

	// Google may omit the refresh token on refresh; the stored one stays.
	sealed, err := v.Encrypt(fresh)
	if err != nil {
		return nil, err
	}
	if err := v.repo.UpdateTokens(ctx, current.ID, sealed.AccessToken, sealed.RefreshToken, sealed.ExpiresAt); err != nil {
		return nil, err
	}

	current.AccessToken = sealed.AccessToken
	if sealed.RefreshToken != nil {
		current.RefreshToken = sealed.RefreshToken
	}
	current.TokenExpiresAt = sealed.ExpiresAt
	logger.Info("CredentialVault:Refresh:Success", "integration_id", current.ID.String())
	return current, nil
}

func (v *CredentialVault) waitForRefresh(ctx context.Context, integ *entity.CalendarIntegration) (*entity.CalendarIntegration, error) {
	deadline := time.NewTimer(v.lockWait)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errors.NewAppError(errors.ErrProviderUnavailable, "calendar token refresh is still in progress", nil)
		case <-tick.C:
			current, err := v.repo.GetByID(ctx, integ.ID)
			if err != nil {
				return nil, err
			}
			if current == nil {
				return nil, errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
			}
			if !current.IsActive {
				return nil, errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "calendar integration is disabled and must be reconnected", nil)
			}
			if !v.needsRefresh(current) {
				return current, nil
			}
		}
	}
}

// refreshFailed disables the integration when the grant was rejected or is
// missing, or when a transient failure would exhaust the error budget.
func (v *CredentialVault) refreshFailed(ctx context.Context, integ *entity.CalendarIntegration, cause error) error {
	permanent := errors.HasCode(cause, errors.ErrTokenExpiredNoRefresh) ||
		errors.HasCode(cause, errors.ErrOAuthDenied) ||
		errors.HasCode(cause, errors.ErrOAuthMisconfigured) ||
		errors.HasCode(cause, errors.ErrUnsupportedOperation)

	// Transient failures are counted by the caller's sync bookkeeping.
	if !permanent && integ.SyncErrorCount+1 < v.maxErrorCount {
		logger.Warn("CredentialVault:Refresh:Transient", "integration_id", integ.ID.String(), "error", cause)
		return cause
	}

	reason := "token refresh failed: " + userMessage(cause)

	logger.Warn("CredentialVault:Refresh:Disabling", "integration_id", integ.ID.String(), "error", cause)
	if err := v.repo.Deactivate(ctx, integ.ID, reason); err != nil {
		logger.Error("CredentialVault:Refresh:Deactivate", "integration_id", integ.ID.String(), "error", err)
	}
	integ.IsActive = false

	if v.notifier != nil {
		if err := v.notifier.NotifyIntegrationDisabled(context.WithoutCancel(ctx), integ.UserID, integ.ID, integ.Provider.String(), reason); err != nil {
			logger.Warn("CredentialVault:Refresh:NotifyOwner", "integration_id", integ.ID.String(), "error", err)
		}
	}
	return errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "calendar access was revoked or expired; reconnect the calendar", cause)
}
