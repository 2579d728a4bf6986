package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestVaultSealsOnlySecrets(t *testing.T) {
	h := newHarness(t)
	exp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sealed, err := h.vault.Encrypt(&entity.TokenData{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		ExpiresAt:    &exp,
		Scope:        "calendar",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.access", sealed.AccessToken)
	require.NotNil(t, sealed.RefreshToken)
	assert.NotContains(t, *sealed.RefreshToken, "refresh")
	assert.Equal(t, &exp, sealed.ExpiresAt)
	assert.Equal(t, "calendar", sealed.Scope)

	td, err := h.vault.Decrypt(&entity.CalendarIntegration{AccessToken: sealed.AccessToken, RefreshToken: sealed.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", td.AccessToken)
	assert.Equal(t, "1//refresh", td.RefreshToken)

	sealed, err = h.vault.Encrypt(&entity.TokenData{AccessToken: "feed"})
	require.NoError(t, err)
	assert.Nil(t, sealed.RefreshToken)
}

func TestVaultRejectsTamperedCiphertext(t *testing.T) {
	h := newHarness(t)
	sealed, err := h.vault.Encrypt(&entity.TokenData{AccessToken: "secret"})
	require.NoError(t, err)

	tampered := []byte(sealed.AccessToken)
	i := len(tampered) / 2
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}
	_, err = h.vault.Decrypt(&entity.CalendarIntegration{AccessToken: string(tampered)})
	assert.True(t, errors.HasCode(err, errors.ErrConfiguration))
}

func TestGetValidAccessTokenRefreshesInsideBuffer(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	ctx := context.Background()

	soon := h.connect(t, entity.ProviderGoogle, owner, "soon", 4*time.Minute)
	token, err := h.vault.GetValidAccessToken(ctx, soon)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", token)
	assert.EqualValues(t, 1, h.google.refreshN.Load())

	stored, _ := h.integrations.GetByID(ctx, soon.ID)
	td, err := h.vault.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", td.AccessToken)
	assert.Equal(t, "refresh-soon", td.RefreshToken, "refresh token kept when the provider omits it")
	assert.True(t, stored.TokenExpiresAt.After(time.Now().Add(30*time.Minute)))

	later := h.connect(t, entity.ProviderGoogle, owner, "later", 10*time.Minute)
	token, err = h.vault.GetValidAccessToken(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, "access-later", token)
	assert.EqualValues(t, 1, h.google.refreshN.Load(), "no refresh outside the buffer")
}

func TestGetValidAccessTokenStoresRotatedRefreshToken(t *testing.T) {
	h := newHarness(t)
	h.google.refresh = func(string) (*entity.TokenData, error) {
		exp := time.Now().Add(time.Hour)
		return &entity.TokenData{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresAt: &exp}, nil
	}
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "rotating", -time.Minute)

	_, err := h.vault.GetValidAccessToken(context.Background(), integ)
	require.NoError(t, err)

	stored, _ := h.integrations.GetByID(context.Background(), integ.ID)
	td, err := h.vault.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", td.RefreshToken)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.google.refresh = func(string) (*entity.TokenData, error) {
		time.Sleep(50 * time.Millisecond)
		exp := time.Now().Add(time.Hour)
		return &entity.TokenData{AccessToken: "shared", ExpiresAt: &exp}, nil
	}
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "busy", time.Minute)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *integ
			tok, err := h.vault.GetValidAccessToken(context.Background(), &cp)
			assert.NoError(t, err)
			tokens[i] = tok
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, h.google.refreshN.Load())
	for _, tok := range tokens {
		assert.Equal(t, "shared", tok)
	}
}

func TestSharedRefreshSurvivesCancelledCaller(t *testing.T) {
	h := newHarness(t)
	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	h.google.refresh = func(string) (*entity.TokenData, error) {
		once.Do(func() { close(entered) })
		<-release
		exp := time.Now().Add(time.Hour)
		return &entity.TokenData{AccessToken: "survivor", ExpiresAt: &exp}, nil
	}
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "shared", time.Minute)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		cp := *integ
		_, _ = h.vault.GetValidAccessToken(first, &cp)
	}()
	<-entered

	second := make(chan string, 1)
	go func() {
		cp := *integ
		tok, err := h.vault.GetValidAccessToken(context.Background(), &cp)
		assert.NoError(t, err)
		second <- tok
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	assert.Equal(t, "survivor", <-second)
	<-firstDone
	assert.EqualValues(t, 1, h.google.refreshN.Load())

	stored, _ := h.integrations.GetByID(context.Background(), integ.ID)
	assert.True(t, stored.IsActive)
	assert.Zero(t, stored.SyncErrorCount)
}

func TestRefreshWaitsForLockHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "locked", time.Minute)

	// Another process holds the refresh lock and finishes shortly after.
	require.NoError(t, h.mr.Set(fmt.Sprintf(constants.CacheKeyRefreshLock, integ.ID), "other-process"))
	go func() {
		time.Sleep(300 * time.Millisecond)
		sealed, _ := h.vault.Encrypt(&entity.TokenData{AccessToken: "from-other-process"})
		exp := time.Now().Add(time.Hour)
		_ = h.integrations.UpdateTokens(ctx, integ.ID, sealed.AccessToken, nil, &exp)
	}()

	token, err := h.vault.GetValidAccessToken(ctx, integ)
	require.NoError(t, err)
	assert.Equal(t, "from-other-process", token)
	assert.EqualValues(t, 0, h.google.refreshN.Load())
}

func TestRejectedGrantDisablesIntegration(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.google.refresh = func(string) (*entity.TokenData, error) {
		return nil, errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "refresh token was revoked", nil)
	}
	integ := h.connect(t, entity.ProviderGoogle, owner, "revoked", time.Minute)
	h.notifier.On("NotifyIntegrationDisabled", mock.Anything, owner, integ.ID, "google", mock.AnythingOfType("string")).
		Return(nil).Once()

	_, err := h.vault.GetValidAccessToken(context.Background(), integ)
	assert.True(t, errors.HasCode(err, errors.ErrTokenExpiredNoRefresh))

	stored, _ := h.integrations.GetByID(context.Background(), integ.ID)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.LastSyncError)
	assert.Contains(t, *stored.LastSyncError, "refresh token was revoked")
	h.notifier.AssertExpectations(t)

	// Disabled integrations are not refreshed again.
	_, err = h.vault.GetValidAccessToken(context.Background(), stored)
	assert.True(t, errors.HasCode(err, errors.ErrTokenExpiredNoRefresh))
	assert.EqualValues(t, 1, h.google.refreshN.Load())
}

func TestTransientRefreshFailureKeepsIntegration(t *testing.T) {
	h := newHarness(t)
	h.google.refresh = func(string) (*entity.TokenData, error) {
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "token endpoint timed out", nil)
	}
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "flaky", time.Minute)

	_, err := h.vault.GetValidAccessToken(context.Background(), integ)
	assert.True(t, errors.HasCode(err, errors.ErrProviderUnavailable))

	stored, _ := h.integrations.GetByID(context.Background(), integ.ID)
	assert.True(t, stored.IsActive)
	h.notifier.AssertNotCalled(t, "NotifyIntegrationDisabled", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransientFailureAtErrorBudgetDisables(t *testing.T) {
	h := newHarness(t)
	h.google.refresh = func(string) (*entity.TokenData, error) {
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "token endpoint timed out", nil)
	}
	integ := h.connect(t, entity.ProviderGoogle, uuid.New(), "worn", time.Minute)
	for i := 0; i < 4; i++ {
		require.NoError(t, h.integrations.MarkSyncFailure(context.Background(), integ.ID, "timeout"))
	}
	h.notifier.On("NotifyIntegrationDisabled", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := h.vault.GetValidAccessToken(context.Background(), integ)
	assert.True(t, errors.HasCode(err, errors.ErrTokenExpiredNoRefresh))

	stored, _ := h.integrations.GetByID(context.Background(), integ.ID)
	assert.False(t, stored.IsActive)
}

func TestFeedCredential(t *testing.T) {
	h := newHarness(t)
	integ := h.connect(t, entity.ProviderICal, uuid.New(), "studio", 0)

	cred, err := h.vault.Credential(context.Background(), integ)
	require.NoError(t, err)
	feed, ok := cred.(entity.FeedCredential)
	require.True(t, ok)
	assert.Equal(t, "https://feeds.test/studio.ics", feed.URL)
}
