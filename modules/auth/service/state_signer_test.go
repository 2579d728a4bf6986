package service

import (
	"strings"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	calendarEntity "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	signer := NewStateSigner("state-secret", 10*time.Minute)
	user, svc := uuid.New(), uuid.New()

	state, expires, err := signer.Sign(user, &svc, calendarEntity.ProviderGoogle, "nonce-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expires, 2*time.Second)

	claims, err := signer.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.UserID)
	assert.Equal(t, svc.String(), claims.ServiceID)
	assert.Equal(t, "google", claims.Provider)
	assert.Equal(t, "nonce-1", claims.Nonce())
}

func TestStateTamperingIsDetected(t *testing.T) {
	signer := NewStateSigner("state-secret", 10*time.Minute)
	state, _, err := signer.Sign(uuid.New(), nil, calendarEntity.ProviderGoogle, "nonce-1")
	require.NoError(t, err)

	parts := strings.Split(state, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = signer.Verify(tampered)
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))

	other := NewStateSigner("another-secret", 10*time.Minute)
	_, err = other.Verify(state)
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
}

func TestStateExpires(t *testing.T) {
	signer := NewStateSigner("state-secret", 10*time.Minute)
	start := time.Now()
	signer.now = func() time.Time { return start }

	state, _, err := signer.Sign(uuid.New(), nil, calendarEntity.ProviderGoogle, "nonce-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return start.Add(9 * time.Minute) }
	_, err = signer.Verify(state)
	require.NoError(t, err)

	signer.now = func() time.Time { return start.Add(11 * time.Minute) }
	_, err = signer.Verify(state)
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
}

func TestEmptyStateIsRejected(t *testing.T) {
	_, err := NewStateSigner("state-secret", 0).Verify("")
	assert.True(t, errors.HasCode(err, errors.ErrStateInvalidOrExpired))
}
