package service

import (
	"context"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/constants"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/mapper"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/provider"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/repository"

	"github.com/google/uuid"
)

// ConnectRequest carries everything needed to persist a freshly authorized calendar.
type ConnectRequest struct {
	UserID    uuid.UUID
	ServiceID *uuid.UUID
	Provider  entity.ProviderType
	Tokens    *entity.TokenData
	Calendar  *entity.CalendarInfo
}

type IntegrationService interface {
	DefaultSettings() entity.SyncSettings
	Connect(ctx context.Context, actor security.Actor, req ConnectRequest) (*entity.CalendarIntegration, error)
	List(ctx context.Context, actor security.Actor, userID uuid.UUID) ([]dto.IntegrationResponse, error)
	Get(ctx context.Context, actor security.Actor, id uuid.UUID) (*entity.CalendarIntegration, error)
	GetResponse(ctx context.Context, actor security.Actor, id uuid.UUID) (*dto.IntegrationResponse, error)
	UpdateSettings(ctx context.Context, actor security.Actor, id uuid.UUID, req *dto.UpdateSettingsRequest) (*dto.IntegrationResponse, error)
	Delete(ctx context.Context, actor security.Actor, id uuid.UUID) error
	Health(integ *entity.CalendarIntegration) mapper.Health
}

type integrationService struct {
	cfg       *config.Config
	repo      repository.IntegrationRepository
	events    repository.EventRepository
	vault     *CredentialVault
	providers *provider.Registry
	now       func() time.Time
}

func NewIntegrationService(
	cfg *config.Config,
	repo repository.IntegrationRepository,
	events repository.EventRepository,
	vault *CredentialVault,
	providers *provider.Registry,
) IntegrationService {
	return &integrationService{
		cfg:       cfg,
		repo:      repo,
		events:    events,
		vault:     vault,
		providers: providers,
		now:       time.Now,
	}
}

func (s *integrationService) DefaultSettings() entity.SyncSettings {
	freq := s.cfg.Sync.DefaultFrequencyMinutes
	if freq <= 0 {
		freq = 30
	}
	return entity.SyncSettings{
		SyncFrequencyMinutes: freq,
		EventTitleTemplate:   provider.DefaultTitleTemplate,
		ReminderMinutes:      []int{60},
		SyncPastDays:         constants.DefaultSyncPastDays,
		SyncFutureDays:       constants.DefaultSyncFutureDays,
	}
}

// Connect creates or refreshes the integration for the authorized calendar.
// A repeated connection of the same calendar updates the existing row.
func (s *integrationService) Connect(ctx context.Context, actor security.Actor, req ConnectRequest) (*entity.CalendarIntegration, error) {
	if !security.CanManageIntegration(actor, req.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to connect a calendar for this user", nil)
	}
	if _, err := s.providers.Get(req.Provider); err != nil {
		return nil, err
	}
	if req.Tokens == nil || req.Calendar == nil || req.Calendar.ID == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "calendar credentials and metadata are required", nil)
	}

	sealed, err := s.vault.Encrypt(req.Tokens)
	if err != nil {
		logger.Error("IntegrationService:Connect:Encrypt", "user_id", req.UserID.String(), "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to secure calendar credentials", err)
	}

	tz := req.Calendar.Timezone
	if tz == "" {
		tz = "UTC"
	}
	settings := s.DefaultSettings()
	settings.Color = req.Calendar.Color

	integ := &entity.CalendarIntegration{
		UserID:                  req.UserID,
		ServiceID:               req.ServiceID,
		Provider:                req.Provider,
		CalendarID:              req.Calendar.ID,
		CalendarName:            req.Calendar.Name,
		CalendarTimezone:        tz,
		AccessToken:             sealed.AccessToken,
		RefreshToken:            sealed.RefreshToken,
		TokenExpiresAt:          sealed.ExpiresAt,
		IsActive:                true,
		SyncBookings:            true,
		SyncAvailability:        true,
		AutoBlockExternalEvents: true,
		SyncSettings:            settings,
	}

	if err := s.repo.Upsert(ctx, integ); err != nil {
		logger.Error("IntegrationService:Connect:Upsert", "user_id", req.UserID.String(), "provider", req.Provider.String(), "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save calendar integration", err)
	}

	logger.Info("IntegrationService:Connect:Success",
		"integration_id", integ.ID.String(),
		"user_id", req.UserID.String(),
		"provider", req.Provider.String(),
	)
	return integ, nil
}

func (s *integrationService) List(ctx context.Context, actor security.Actor, userID uuid.UUID) ([]dto.IntegrationResponse, error) {
	if !security.CanViewIntegration(actor, userID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to view these calendar integrations", nil)
	}

	integrations, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar integrations", err)
	}

	out := make([]dto.IntegrationResponse, 0, len(integrations))
	for i := range integrations {
		out = append(out, mapper.ToIntegrationResponse(&integrations[i], s.Health(&integrations[i])))
	}
	return out, nil
}

func (s *integrationService) Get(ctx context.Context, actor security.Actor, id uuid.UUID) (*entity.CalendarIntegration, error) {
	integ, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
	}
	if !security.CanViewIntegration(actor, integ.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to view this calendar integration", nil)
	}
	return integ, nil
}

func (s *integrationService) GetResponse(ctx context.Context, actor security.Actor, id uuid.UUID) (*dto.IntegrationResponse, error) {
	integ, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := mapper.ToIntegrationResponse(integ, s.Health(integ))
	return &resp, nil
}

func (s *integrationService) UpdateSettings(ctx context.Context, actor security.Actor, id uuid.UUID, req *dto.UpdateSettingsRequest) (*dto.IntegrationResponse, error) {
	integ, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !security.CanManageIntegration(actor, integ.UserID) {
		return nil, errors.NewAppError(errors.ErrForbidden, "not allowed to change this calendar integration", nil)
	}

	wasActive := integ.IsActive
	mapper.ApplySettings(integ, req)
	// A disabled OAuth integration has no usable grant; it must be reconnected.
	if !wasActive && integ.IsActive && integ.Provider == entity.ProviderGoogle {
		return nil, errors.NewAppError(errors.ErrTokenExpiredNoRefresh, "reconnect the calendar to re-enable it", nil)
	}

	if err := s.repo.UpdateSettings(ctx, integ); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to update calendar integration", err)
	}
	logger.Info("IntegrationService:UpdateSettings:Success", "integration_id", integ.ID.String())

	resp := mapper.ToIntegrationResponse(integ, s.Health(integ))
	return &resp, nil
}

// Delete removes the integration and its mirrored events. Removing generated
// .ics files and revoking the grant at the provider are best effort.
func (s *integrationService) Delete(ctx context.Context, actor security.Actor, id uuid.UUID) error {
	integ, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil {
		return errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
	}
	if !security.CanManageIntegration(actor, integ.UserID) {
		return errors.NewAppError(errors.ErrForbidden, "not allowed to delete this calendar integration", nil)
	}

	cred := s.storedCredential(integ)
	if integ.Provider == entity.ProviderICal {
		s.removeGeneratedFiles(ctx, actor, integ, cred)
	}
	s.revoke(ctx, integ, cred)

	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to delete calendar integration", err)
	}
	logger.Info("IntegrationService:Delete:Success", "integration_id", id.String(), "provider", integ.Provider.String())
	return nil
}

// storedCredential decrypts the saved tokens without refreshing them. It
// returns nil when they cannot be read.
func (s *integrationService) storedCredential(integ *entity.CalendarIntegration) entity.ProviderCredential {
	td, err := s.vault.Decrypt(integ)
	if err != nil {
		logger.Warn("IntegrationService:Delete:CredentialUnreadable", "integration_id", integ.ID.String(), "error", err)
		return nil
	}
	if integ.Provider == entity.ProviderICal {
		feedURL, err := provider.DecodeFeedToken(td.AccessToken)
		if err != nil {
			return nil
		}
		return entity.FeedCredential{URL: feedURL}
	}
	return entity.OAuthCredential{AccessToken: td.AccessToken, RefreshToken: td.RefreshToken, Expiry: integ.TokenExpiresAt}
}

// removeGeneratedFiles deletes the .ics objects pushed for bookings; the
// mirror rows themselves go with the integration row.
func (s *integrationService) removeGeneratedFiles(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential) {
	adapter, err := s.providers.Get(integ.Provider)
	if err != nil {
		return
	}
	mirrors, err := s.events.ListBookingMirrors(ctx, integ.ID)
	if err != nil {
		logger.Warn("IntegrationService:Delete:ListMirrors", "integration_id", integ.ID.String(), "error", err)
		return
	}
	removed := 0
	for _, ev := range mirrors {
		if _, err := adapter.DeleteEvent(ctx, actor, integ, cred, ev.ExternalEventID); err != nil {
			logger.Warn("IntegrationService:Delete:RemoveFile", "integration_id", integ.ID.String(), "event_id", ev.ID.String(), "error", err)
			continue
		}
		removed++
	}
	logger.Info("IntegrationService:Delete:FilesRemoved", "integration_id", integ.ID.String(), "removed", removed)
}

func (s *integrationService) revoke(ctx context.Context, integ *entity.CalendarIntegration, cred entity.ProviderCredential) {
	if cred == nil {
		return
	}
	adapter, err := s.providers.Get(integ.Provider)
	if err != nil {
		return
	}
	if err := adapter.Revoke(ctx, cred); err != nil {
		logger.Warn("IntegrationService:Delete:RevokeFailed", "integration_id", integ.ID.String(), "error", err)
	}
}

// Health reports an integration healthy when it is active, its token is
// live, it has not exceeded the error budget and it synced within a day.
func (s *integrationService) Health(integ *entity.CalendarIntegration) mapper.Health {
	now := s.now()
	maxErrors := s.cfg.Sync.MaxErrorCount
	if maxErrors <= 0 {
		maxErrors = 5
	}

	expired := integ.TokenExpired(now)
	recent := integ.LastSyncAt != nil && now.Sub(*integ.LastSyncAt) <= constants.HealthySyncWindow
	return mapper.Health{
		Healthy:      integ.IsActive && !expired && integ.SyncErrorCount <= maxErrors && recent,
		TokenExpired: expired,
		NextSyncAt:   integ.NextSyncAt(s.cfg.Sync.DefaultFrequencyMinutes),
	}
}
