package controller

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/controller"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/service"
	calendarDto "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/mapper"
	calendarService "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type OAuthController struct {
	controller.BaseController
	flows        service.OAuthFlowService
	integrations calendarService.IntegrationService
}

func NewOAuthController(flows service.OAuthFlowService, integrations calendarService.IntegrationService) *OAuthController {
	return &OAuthController{
		BaseController: controller.NewBaseController(),
		flows:          flows,
		integrations:   integrations,
	}
}

// Initiate returns the provider authorization URL for the caller, or for
// user_id when the caller may manage other users' calendars.
func (c *OAuthController) Initiate(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(calendarDto.InitiateOAuthRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters")
	}

	userID := actor.UserID
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return c.BadRequest(errors.ErrInvalidRequestData, "Invalid user_id")
		}
		userID = id
	}
	var serviceID *uuid.UUID
	if req.ServiceID != "" {
		id, err := uuid.Parse(req.ServiceID)
		if err != nil {
			return c.BadRequest(errors.ErrInvalidRequestData, "Invalid service_id")
		}
		serviceID = &id
	}

	resp, err := c.flows.Initiate(ctx.Request().Context(), actor, service.InitiateRequest{
		Provider:  req.Provider,
		UserID:    userID,
		ServiceID: serviceID,
		ClientIP:  ctx.RealIP(),
	})
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, resp, "Authorization started")
}

// Callback is the public redirect target registered with the provider.
func (c *OAuthController) Callback(ctx echo.Context) error {
	req := new(calendarDto.OAuthCallbackRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters")
	}

	integ, err := c.flows.CompleteCallback(ctx.Request().Context(), service.CallbackRequest{
		Provider:         req.Provider,
		Code:             req.Code,
		State:            req.State,
		Error:            req.Error,
		ErrorDescription: req.ErrorDescription,
		ClientIP:         ctx.RealIP(),
	})
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, mapper.ToIntegrationResponse(integ, c.integrations.Health(integ)), "Calendar connected successfully")
}

func (c *OAuthController) ConnectFeed(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(calendarDto.ConnectFeedRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if result := validator.ValidateConnectFeedRequest(req); result.HasError() {
		return c.ValidationError("Invalid feed", result)
	}

	userID := actor.UserID
	if req.UserID != nil {
		userID = *req.UserID
	}
	integ, err := c.flows.ConnectFeed(ctx.Request().Context(), actor, service.ConnectFeedRequest{
		UserID:    userID,
		ServiceID: req.ServiceID,
		URL:       req.URL,
	})
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, mapper.ToIntegrationResponse(integ, c.integrations.Health(integ)), "Calendar feed connected successfully")
}

// CancelPending abandons the caller's unfinished authorizations.
func (c *OAuthController) CancelPending(ctx echo.Context) error {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	n, err := c.flows.CancelPending(ctx.Request().Context(), actor, actor.UserID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, map[string]int{"cancelled": n}, "Pending authorizations cancelled")
}
