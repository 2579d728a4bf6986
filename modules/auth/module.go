package auth

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/controller"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/repository"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/router"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar"

	"github.com/labstack/echo/v4"
)

// Init mounts the calendar authorization endpoints on top of the calendar module.
func Init(v1 *echo.Group, mw *middleware.Middleware, cfg *config.Config, c cache.Cache, cal *calendar.Module) service.OAuthFlowService {
	flows := repository.NewFlowContextRepository(c)
	flowService := service.NewOAuthFlowService(cfg, flows, cal.Providers, cal.Integrations)
	oauthController := controller.NewOAuthController(flowService, cal.Integrations)

	router.NewOAuthRouter(oauthController).Setup(v1, mw)
	return flowService
}
