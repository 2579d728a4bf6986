package router

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/controller"

	"github.com/labstack/echo/v4"
)

type BookingRouter struct {
	Controller *controller.BookingController
}

func NewBookingRouter(ctrl *controller.BookingController) *BookingRouter {
	return &BookingRouter{Controller: ctrl}
}

func (r *BookingRouter) Setup(v1 *echo.Group, mw *middleware.Middleware) {
	priv := v1.Group("/private", mw.AuthMiddleware())

	booking := priv.Group("/bookings")
	booking.POST("/check-slot", r.Controller.CheckSlot)
	booking.POST("/:id/calendar-sync", r.Controller.PushToCalendars)
	booking.DELETE("/:id/calendar-sync", r.Controller.RemoveFromCalendars)
}
