package calendar

import (
	"net/http"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/core/storage"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/controller"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/router"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/tasks"

	"github.com/labstack/echo/v4"
)

// Deps are the collaborators the calendar module needs from the host process.
type Deps struct {
	Config   *config.Config
	DB       database.IDatabase
	Cache    cache.Cache
	Store    storage.ObjectStore
	Enqueuer queue.Enqueuer
	Notifier service.OwnerNotifier
	// HTTPClient is shared by provider adapters; nil uses a default client.
	HTTPClient *http.Client
}

// Module exposes the calendar services to the other modules and the worker.
type Module struct {
	Providers    *provider.Registry
	Vault        *service.CredentialVault
	Integrations service.IntegrationService
	Sync         service.SyncService
	Availability service.AvailabilityService
	Tasks        *tasks.Handler
}

func Init(v1 *echo.Group, mw *middleware.Middleware, deps Deps) (*Module, error) {
	cfg := deps.Config
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Sync.MetadataTimeout}
	}

	integrationRepo := repository.NewIntegrationRepository(deps.DB)
	eventRepo := repository.NewEventRepository(deps.DB)
	runRepo := repository.NewSyncRunRepository(deps.DB)

	providers := provider.NewRegistry(
		provider.NewGoogleAdapter(cfg, client),
		provider.NewICalAdapter(cfg, deps.Store, client),
	)

	vault, err := service.NewCredentialVault(cfg, integrationRepo, providers, deps.Cache, deps.Notifier)
	if err != nil {
		return nil, err
	}

	integrationSvc := service.NewIntegrationService(cfg, integrationRepo, eventRepo, vault, providers)
	syncSvc := service.NewSyncService(cfg, integrationRepo, eventRepo, runRepo, vault, providers, deps.Cache, deps.Enqueuer)
	availabilitySvc := service.NewAvailabilityService(eventRepo, provider.NewGuard(cfg.Security.DenialPolicy))

	calendarController := controller.NewCalendarController(integrationSvc, syncSvc, availabilitySvc)
	router.NewCalendarRouter(calendarController).Setup(v1, mw)

	return &Module{
		Providers:    providers,
		Vault:        vault,
		Integrations: integrationSvc,
		Sync:         syncSvc,
		Availability: availabilitySvc,
		Tasks:        tasks.NewHandler(syncSvc),
	}, nil
}
