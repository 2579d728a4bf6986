package booking

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/controller"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/repository"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/router"
	bookingService "github.com/SunnyC0d3/booking-system-sub009/modules/booking/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/tasks"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar"

	"github.com/labstack/echo/v4"
)

// Init wires the booking side of calendar sync and returns its job handler.
func Init(v1 *echo.Group, mw *middleware.Middleware, db database.IDatabase, cal *calendar.Module, notifier bookingService.BookingNotifier) *tasks.Handler {
	repo := repository.NewBookingRepository(db)
	svc := bookingService.NewBookingService(repo, cal.Sync, cal.Availability, notifier)
	ctrl := controller.NewBookingController(svc)

	router.NewBookingRouter(ctrl).Setup(v1, mw)
	return tasks.NewHandler(svc)
}
