package controller

import (
	"strconv"

	"github.com/SunnyC0d3/booking-system-sub009/core/controller"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/mapper"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	controller.BaseController
	integrations service.IntegrationService
	sync         service.SyncService
	availability service.AvailabilityService
}

func NewCalendarController(
	integrations service.IntegrationService,
	sync service.SyncService,
	availability service.AvailabilityService,
) *CalendarController {
	return &CalendarController{
		BaseController: controller.NewBaseController(),
		integrations:   integrations,
		sync:           sync,
		availability:   availability,
	}
}

func (c *CalendarController) actor(ctx echo.Context) (security.Actor, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return security.Actor{}, c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}
	return actor, nil
}

// userScope resolves the optional user_id query parameter, defaulting to the caller.
func (c *CalendarController) userScope(ctx echo.Context, actor security.Actor) (uuid.UUID, error) {
	raw := ctx.QueryParam("user_id")
	if raw == "" {
		return actor.UserID, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, c.BadRequest(errors.ErrInvalidRequestData, "Invalid user_id")
	}
	return id, nil
}

func (c *CalendarController) idParam(ctx echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, c.BadRequest(errors.ErrInvalidRequestData, "Invalid integration id")
	}
	return id, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ListIntegrations returns the user's integrations with their health summary.
func (c *CalendarController) ListIntegrations(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	userID, err := c.userScope(ctx, actor)
	if err != nil {
		return err
	}

	items, err := c.integrations.List(ctx.Request().Context(), actor, userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.IntegrationListResponse{Integrations: items}, "Calendar integrations retrieved successfully")
}

func (c *CalendarController) GetIntegration(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	id, err := c.idParam(ctx)
	if err != nil {
		return err
	}

	resp, err := c.integrations.GetResponse(ctx.Request().Context(), actor, id)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, resp, "Calendar integration retrieved successfully")
}

func (c *CalendarController) UpdateSettings(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	id, err := c.idParam(ctx)
	if err != nil {
		return err
	}

	req := new(dto.UpdateSettingsRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if result := validator.ValidateUpdateSettingsRequest(req); result.HasError() {
		return c.ValidationError("Invalid settings", result)
	}

	resp, err := c.integrations.UpdateSettings(ctx.Request().Context(), actor, id, req)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, resp, "Calendar settings updated successfully")
}

func (c *CalendarController) DeleteIntegration(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	id, err := c.idParam(ctx)
	if err != nil {
		return err
	}

	if err := c.integrations.Delete(ctx.Request().Context(), actor, id); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Calendar disconnected successfully")
}

// SyncIntegration pulls one integration now and reports the outcome.
func (c *CalendarController) SyncIntegration(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	id, err := c.idParam(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	run, err := c.sync.SyncNow(reqCtx, actor, id)
	if run == nil {
		return c.ErrorResponse(ctx, err)
	}
	if err != nil {
		logger.Info("CalendarController:SyncIntegration:Failed", "integration_id", id.String())
	}

	integ, getErr := c.integrations.Get(reqCtx, actor, id)
	if getErr != nil {
		return c.ErrorResponse(ctx, getErr)
	}
	return c.SuccessResponse(ctx, mapper.ToSyncNowResponse(integ, run), "Calendar sync finished")
}

func (c *CalendarController) ListSyncRuns(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	id, err := c.idParam(ctx)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	runs, err := c.sync.RecentRuns(ctx.Request().Context(), actor, id, limit)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, mapper.ToSyncRunResponses(runs), "Sync runs retrieved successfully")
}

// EnqueueSyncs queues a background pull for each of the user's active integrations.
func (c *CalendarController) EnqueueSyncs(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	userID, err := c.userScope(ctx, actor)
	if err != nil {
		return err
	}

	n, err := c.sync.EnqueueUserSyncs(ctx.Request().Context(), actor, userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.EnqueueSyncResponse{Enqueued: n}, "Calendar syncs queued")
}

// CheckAvailability asks every auto-blocking provider whether the slot is free.
func (c *CalendarController) CheckAvailability(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	userID, err := c.userScope(ctx, actor)
	if err != nil {
		return err
	}

	req := new(dto.AvailabilityRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters")
	}
	start, end, result := validator.ParseWindow(req.Start, req.End)
	if result.HasError() {
		return c.ValidationError("Invalid time window", result)
	}
	serviceID, err := optionalUUID(req.ServiceID)
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid service_id")
	}

	avail, err := c.sync.CheckAvailability(ctx.Request().Context(), actor, userID, serviceID, start, end)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	resp := dto.AvailabilityResponse{Available: avail.Available, Conflicts: make([]dto.ConflictResponse, 0, len(avail.Conflicts))}
	for _, cf := range avail.Conflicts {
		resp.Conflicts = append(resp.Conflicts, dto.ConflictResponse{
			IntegrationID: cf.IntegrationID,
			Provider:      cf.Provider.String(),
			Title:         cf.Title,
			Start:         cf.Start,
			End:           cf.End,
		})
	}
	return c.SuccessResponse(ctx, resp, "Availability checked successfully")
}

// FreeGaps lists free time inside the window from the mirrored events.
func (c *CalendarController) FreeGaps(ctx echo.Context) error {
	actor, err := c.actor(ctx)
	if err != nil {
		return err
	}
	userID, err := c.userScope(ctx, actor)
	if err != nil {
		return err
	}

	req := new(dto.FreeGapsRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters")
	}
	start, end, result := validator.ParseWindow(req.Start, req.End)
	if result.HasError() {
		return c.ValidationError("Invalid time window", result)
	}
	serviceID, err := optionalUUID(req.ServiceID)
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid service_id")
	}

	q := service.SlotQuery{UserID: userID, ServiceID: serviceID, Start: start, End: end}
	gaps, err := c.availability.FreeGaps(ctx.Request().Context(), actor, q, req.MinMinutes)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.FreeGapsResponse{Gaps: gaps}, "Free gaps retrieved successfully")
}
