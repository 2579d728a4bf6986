package service

import (
	"context"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/core/utils"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth/repository"
	calendarDto "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	calendarEntity "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	calendarService "github.com/SunnyC0d3/booking-system-sub009/modules/calendar/service"

	"github.com/google/uuid"
)

const nonceLength = 24

type InitiateRequest struct {
	Provider  string
	UserID    uuid.UUID
	ServiceID *uuid.UUID
	ClientIP  string
}

type CallbackRequest struct {
	Provider         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ClientIP         string
}

type ConnectFeedRequest struct {
	UserID    uuid.UUID
	ServiceID *uuid.UUID
	URL       string
}

type OAuthFlowService interface {
	Initiate(ctx context.Context, actor security.Actor, req InitiateRequest) (*calendarDto.InitiateOAuthResponse, error)
	CompleteCallback(ctx context.Context, req CallbackRequest) (*calendarEntity.CalendarIntegration, error)
	ConnectFeed(ctx context.Context, actor security.Actor, req ConnectFeedRequest) (*calendarEntity.CalendarIntegration, error)
	CancelPending(ctx context.Context, actor security.Actor, userID uuid.UUID) (int, error)
}

type oauthFlowService struct {
	cfg          *config.Config
	flows        repository.FlowContextRepository
	signer       *StateSigner
	providers    *provider.Registry
	integrations calendarService.IntegrationService
	now          func() time.Time
}

func NewOAuthFlowService(
	cfg *config.Config,
	flows repository.FlowContextRepository,
	providers *provider.Registry,
	integrations calendarService.IntegrationService,
) OAuthFlowService {
	return &oauthFlowService{
		cfg:          cfg,
		flows:        flows,
		signer:       NewStateSigner(cfg.Security.StateSecret, cfg.Sync.StateTTL),
		providers:    providers,
		integrations: integrations,
		now:          time.Now,
	}
}

func (s *oauthFlowService) adapter(name string) (provider.Adapter, calendarEntity.ProviderType, error) {
	p := calendarEntity.ProviderType(strings.ToLower(strings.TrimSpace(name)))
	if !p.IsValid() {
		return nil, p, errors.NewAppError(errors.ErrUnsupportedProvider, "unsupported calendar provider: "+name, nil)
	}
	a, err := s.providers.Get(p)
	if err != nil {
		return nil, p, err
	}
	return a, p, nil
}

// Initiate starts an authorization for userID and returns the provider URL to
// redirect the browser to.
func (s *oauthFlowService) Initiate(ctx context.Context, actor security.Actor, req InitiateRequest) (*calendarDto.InitiateOAuthResponse, error) {
	adapter, p, err := s.adapter(req.Provider)
	if err != nil {
		return nil, err
	}
	if !security.CanManageIntegration(actor, req.UserID) {
		logger.Warn("OAuthFlowService:Initiate:Forbidden", "user_id", req.UserID.String(), "actor_id", actor.UserID.String())
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to connect a calendar for this user", nil)
	}

	nonce, err := utils.GenerateNonce(nonceLength)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to generate authorization state", err)
	}
	state, expiresAt, err := s.signer.Sign(req.UserID, req.ServiceID, p, nonce)
	if err != nil {
		return nil, err
	}

	authURL, err := adapter.AuthURL(state)
	if err != nil {
		logger.Warn("OAuthFlowService:Initiate:AuthURL", "provider", p.String(), "error", err)
		return nil, err
	}

	fc := &entity.FlowContext{
		Nonce:       nonce,
		UserID:      req.UserID,
		ServiceID:   req.ServiceID,
		Provider:    p,
		InitiatedBy: actor.UserID,
		ClientIP:    req.ClientIP,
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}
	if err := s.flows.Save(ctx, fc); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to store authorization state", err)
	}

	logger.Info("OAuthFlowService:Initiate:Success",
		"user_id", req.UserID.String(),
		"provider", p.String(),
		"expires_at", expiresAt,
	)
	return &calendarDto.InitiateOAuthResponse{
		AuthorizationURL: authURL,
		State:            state,
		ExpiresAt:        expiresAt.UTC(),
	}, nil
}

// CompleteCallback finishes an authorization. Nothing is persisted unless every
// step succeeds.
func (s *oauthFlowService) CompleteCallback(ctx context.Context, req CallbackRequest) (*calendarEntity.CalendarIntegration, error) {
	if req.Error != "" {
		logger.Warn("OAuthFlowService:CompleteCallback:ProviderError", "provider", req.Provider, "error", req.Error)
		return nil, providerError(req.Error, req.ErrorDescription)
	}

	adapter, p, err := s.adapter(req.Provider)
	if err != nil {
		return nil, err
	}

	claims, err := s.signer.Verify(req.State)
	if err != nil {
		logger.Warn("OAuthFlowService:CompleteCallback:BadState", "provider", p.String(), "error", err)
		return nil, err
	}
	if claims.Provider != p.String() {
		return nil, stateInvalid()
	}

	fc, err := s.flows.Consume(ctx, claims.Nonce())
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to validate authorization state", err)
	}
	if fc == nil {
		logger.Warn("OAuthFlowService:CompleteCallback:StateNotFound", "provider", p.String())
		return nil, stateInvalid()
	}
	if fc.UserID.String() != claims.UserID || fc.Provider != p {
		return nil, stateInvalid()
	}

	if fc.ClientIP != "" && req.ClientIP != "" && fc.ClientIP != req.ClientIP {
		logger.Warn("OAuthFlowService:CompleteCallback:OriginChanged",
			"user_id", fc.UserID.String(),
			"enforced", s.cfg.Security.EnforceOriginIP,
		)
		if s.cfg.Security.EnforceOriginIP {
			return nil, stateInvalid()
		}
	}

	if strings.TrimSpace(req.Code) == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "authorization code is required", nil)
	}

	tokens, err := adapter.ExchangeCode(ctx, req.Code)
	if err != nil {
		logger.Error("OAuthFlowService:CompleteCallback:ExchangeCode", "user_id", fc.UserID.String(), "provider", p.String(), "error", err)
		return nil, err
	}
	return s.connect(ctx, adapter, fc.UserID, fc.ServiceID, tokens)
}

// ConnectFeed is the iCal counterpart of the OAuth callback: the feed url is
// validated and becomes the credential.
func (s *oauthFlowService) ConnectFeed(ctx context.Context, actor security.Actor, req ConnectFeedRequest) (*calendarEntity.CalendarIntegration, error) {
	if !security.CanManageIntegration(actor, req.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to connect a calendar for this user", nil)
	}
	adapter, err := s.providers.Get(calendarEntity.ProviderICal)
	if err != nil {
		return nil, err
	}

	tokens, err := adapter.ExchangeCode(ctx, req.URL)
	if err != nil {
		logger.Warn("OAuthFlowService:ConnectFeed:Validate", "user_id", req.UserID.String(), "error", err)
		return nil, err
	}
	return s.connect(ctx, adapter, req.UserID, req.ServiceID, tokens)
}

func (s *oauthFlowService) connect(ctx context.Context, adapter provider.Adapter, userID uuid.UUID, serviceID *uuid.UUID, tokens *calendarEntity.TokenData) (*calendarEntity.CalendarIntegration, error) {
	cred, err := credentialFor(adapter.Provider(), tokens)
	if err != nil {
		return nil, err
	}
	info, err := adapter.CalendarInfo(ctx, cred)
	if err != nil {
		logger.Error("OAuthFlowService:Connect:CalendarInfo", "user_id", userID.String(), "provider", adapter.Provider().String(), "error", err)
		return nil, err
	}

	// Permission was checked when the flow began; the signed state carries it here.
	return s.integrations.Connect(ctx, security.SystemActor(), calendarService.ConnectRequest{
		UserID:    userID,
		ServiceID: serviceID,
		Provider:  adapter.Provider(),
		Tokens:    tokens,
		Calendar:  info,
	})
}

func (s *oauthFlowService) CancelPending(ctx context.Context, actor security.Actor, userID uuid.UUID) (int, error) {
	if !security.CanManageIntegration(actor, userID) {
		return 0, errors.NewAppError(errors.ErrForbidden, "not allowed to manage this user's calendars", nil)
	}
	n, err := s.flows.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to clear pending authorizations", err)
	}
	return n, nil
}

func credentialFor(p calendarEntity.ProviderType, tokens *calendarEntity.TokenData) (calendarEntity.ProviderCredential, error) {
	switch p {
	case calendarEntity.ProviderGoogle:
		return calendarEntity.OAuthCredential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			Expiry:       tokens.ExpiresAt,
		}, nil
	case calendarEntity.ProviderICal:
		feedURL, err := provider.DecodeFeedToken(tokens.AccessToken)
		if err != nil {
			return nil, err
		}
		return calendarEntity.FeedCredential{URL: feedURL}, nil
	}
	return nil, errors.NewAppError(errors.ErrUnsupportedProvider, "unsupported calendar provider: "+p.String(), nil)
}

func stateInvalid() error {
	return errors.NewAppError(errors.ErrStateInvalidOrExpired, "authorization state is invalid or has expired, please start again", nil)
}

// providerError turns an OAuth error response into a message the user can act on.
func providerError(code, description string) error {
	var err error
	if description != "" {
		err = errors.New(description)
	}
	switch code {
	case "access_denied":
		return errors.NewAppError(errors.ErrOAuthDenied, "calendar access was declined, connect again and allow access to continue", err)
	case "invalid_client", "unauthorized_client", "invalid_scope", "redirect_uri_mismatch", "invalid_request", "unsupported_response_type":
		return errors.NewAppError(errors.ErrOAuthMisconfigured, "calendar connection is not configured correctly, please contact support", err)
	case "temporarily_unavailable", "server_error":
		return errors.NewAppError(errors.ErrProviderUnavailable, "the calendar provider is unavailable, please try again later", err)
	default:
		return errors.NewAppError(errors.ErrOAuthDenied, "calendar authorization failed: "+code, err)
	}
}
