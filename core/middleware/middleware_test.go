package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims AccessClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestAuthMiddlewareSetsActor(t *testing.T) {
	userID := uuid.New()
	m := NewMiddleware("jwt-secret")
	token := sign(t, "jwt-secret", AccessClaims{
		UserID:       userID.String(),
		Capabilities: []string{string(security.CapViewAllIntegrations)},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got security.Actor
	handler := m.AuthMiddleware()(func(c echo.Context) error {
		got, _ = ActorFromContext(c)
		return c.NoContent(http.StatusNoContent)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID, got.UserID)
	assert.True(t, got.Has(security.CapViewAllIntegrations))
}

func TestAuthMiddlewareRejects(t *testing.T) {
	m := NewMiddleware("jwt-secret")
	expired := sign(t, "jwt-secret", AccessClaims{
		UserID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	foreign := sign(t, "other-secret", AccessClaims{UserID: uuid.NewString()})

	cases := map[string]struct {
		header string
		status int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"not bearer":     {"Basic abc", http.StatusUnauthorized},
		"expired":        {"Bearer " + expired, http.StatusUnauthorized},
		"wrong key":      {"Bearer " + foreign, http.StatusUnauthorized},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			called := false
			handler := m.AuthMiddleware()(func(c echo.Context) error {
				called = true
				return nil
			})
			require.NoError(t, handler(c))
			assert.False(t, called)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
