package service

import (
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	calendarEntity "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateIssuer = "calendar-oauth"

// StateClaims bind an authorization to the user, service and provider it was
// started for. The nonce is the JWT id and keys the cached flow context.
type StateClaims struct {
	UserID    string `json:"uid"`
	ServiceID string `json:"sid,omitempty"`
	Provider  string `json:"prv"`
	jwt.RegisteredClaims
}

func (c *StateClaims) Nonce() string {
	return c.ID
}

// StateSigner issues and verifies the OAuth state parameter. Tampering is
// detected from the HMAC alone, before any cache lookup.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *StateSigner) Sign(userID uuid.UUID, serviceID *uuid.UUID, provider calendarEntity.ProviderType, nonce string) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(s.ttl)

	claims := &StateClaims{
		UserID:   userID.String(),
		Provider: provider.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if serviceID != nil {
		claims.ServiceID = serviceID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.NewAppError(errors.ErrConfiguration, "failed to sign oauth state", err)
	}
	return signed, expires, nil
}

func (s *StateSigner) Verify(state string) (*StateClaims, error) {
	if state == "" {
		return nil, errors.NewAppError(errors.ErrStateInvalidOrExpired, "missing authorization state", nil)
	}

	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrStateInvalidOrExpired, "authorization state is invalid or has expired, please start again", err)
	}
	if claims.ID == "" {
		return nil, errors.NewAppError(errors.ErrStateInvalidOrExpired, "authorization state is invalid or has expired, please start again", nil)
	}
	return claims, nil
}
