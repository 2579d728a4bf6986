package router

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/controller"

	"github.com/labstack/echo/v4"
)

type OAuthRouter struct {
	controller *controller.OAuthController
}

func NewOAuthRouter(controller *controller.OAuthController) *OAuthRouter {
	return &OAuthRouter{controller: controller}
}

func (r *OAuthRouter) Setup(v1 *echo.Group, mw *middleware.Middleware) {
	// The provider redirects the browser here without a bearer token.
	publicRoutes := v1.Group("/public/calendar")
	publicRoutes.GET("/oauth/:provider/callback", r.controller.Callback)

	privateRoutes := v1.Group("/private/calendar")
	privateRoutes.Use(mw.AuthMiddleware())
	privateRoutes.GET("/oauth/:provider/initiate", r.controller.Initiate)
	privateRoutes.DELETE("/oauth/pending", r.controller.CancelPending)
	privateRoutes.POST("/ical/connect", r.controller.ConnectFeed)
}
