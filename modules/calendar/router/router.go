package router

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(v1 *echo.Group, mw *middleware.Middleware) {
	calendarRoutes := v1.Group("/private/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	// Integrations
	calendarRoutes.GET("/integrations", r.controller.ListIntegrations)
	calendarRoutes.GET("/integrations/:id", r.controller.GetIntegration)
	calendarRoutes.PUT("/integrations/:id/settings", r.controller.UpdateSettings)
	calendarRoutes.DELETE("/integrations/:id", r.controller.DeleteIntegration)

	// Sync
	calendarRoutes.POST("/integrations/:id/sync", r.controller.SyncIntegration)
	calendarRoutes.GET("/integrations/:id/sync-runs", r.controller.ListSyncRuns)
	calendarRoutes.POST("/sync", r.controller.EnqueueSyncs)

	// Availability
	calendarRoutes.GET("/availability", r.controller.CheckAvailability)
	calendarRoutes.GET("/free-gaps", r.controller.FreeGaps)
}
