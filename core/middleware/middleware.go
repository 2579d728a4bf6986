package middleware

import (
	"strings"

	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/controller"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AccessClaims is the bearer token issued by the platform's identity service.
type AccessClaims struct {
	UserID       string   `json:"user_id"`
	Capabilities []string `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

type Middleware struct {
	secret []byte
	base   controller.BaseController
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{secret: []byte(jwtSecret), base: controller.NewBaseController()}
}

func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return m.base.ErrorResponse(c, errors.NewAppError(errors.ErrMissingAuthorizationHeader, "missing authorization header", nil))
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return m.base.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidTokenFormat, "invalid authorization header", nil))
			}

			actor, err := m.ParseActor(raw)
			if err != nil {
				logger.Warn("Middleware:AuthMiddleware:ParseActor:Error", "error", err)
				return m.base.ErrorResponse(c, err)
			}

			c.Set(constants.ContextActorKey, actor)
			return next(c)
		}
	}
}

func (m *Middleware) ParseActor(raw string) (security.Actor, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return security.Actor{}, errors.NewAppError(errors.ErrTokenExpired, "token expired", err)
		}
		return security.Actor{}, errors.NewAppError(errors.ErrUnauthorized, "invalid token", err)
	}
	if !token.Valid {
		return security.Actor{}, errors.NewAppError(errors.ErrUnauthorized, "invalid token", nil)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return security.Actor{}, errors.NewAppError(errors.ErrUnauthorized, "invalid subject", err)
	}

	caps := make([]security.Capability, 0, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		caps = append(caps, security.Capability(c))
	}
	return security.UserActor(userID, caps...), nil
}

// ActorFromContext returns the authenticated actor set by AuthMiddleware.
func ActorFromContext(c echo.Context) (security.Actor, bool) {
	actor, ok := c.Get(constants.ContextActorKey).(security.Actor)
	return actor, ok
}
