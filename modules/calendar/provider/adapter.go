package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"
)

// Adapter is the uniform surface over one calendar backend.
//
// Reads and writes that take an actor check it against the integration owner
// first. A denied write returns FORBIDDEN; a denied read follows the Guard's
// denial policy.
type Adapter interface {
	Provider() entity.ProviderType

	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*entity.TokenData, error)
	Refresh(ctx context.Context, refreshToken string) (*entity.TokenData, error)
	CalendarInfo(ctx context.Context, cred entity.ProviderCredential) (*entity.CalendarInfo, error)

	// CreateEvent returns the external event id, or "" when nothing was created.
	CreateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, booking *bookingEntity.Booking) (string, error)
	// UpdateEvent returns false when the external event no longer exists.
	UpdateEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, booking *bookingEntity.Booking, externalID string) (bool, error)
	DeleteEvent(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, externalID string) (bool, error)
	ListBusyIntervals(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, from, to time.Time) ([]entity.BusyInterval, error)
	IsSlotAvailable(ctx context.Context, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, start, end time.Time) (bool, error)

	// Revoke invalidates the credential at the provider, where supported.
	Revoke(ctx context.Context, cred entity.ProviderCredential) error
}

// Registry selects the adapter for a provider type.
type Registry struct {
	adapters map[entity.ProviderType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[entity.ProviderType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Get(p entity.ProviderType) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, errors.NewAppError(errors.ErrUnsupportedProvider, fmt.Sprintf("unsupported calendar provider %q", p), nil)
	}
	return a, nil
}

func (r *Registry) Providers() []entity.ProviderType {
	out := make([]entity.ProviderType, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

func checkAvailable(ctx context.Context, a Adapter, actor security.Actor, integ *entity.CalendarIntegration, cred entity.ProviderCredential, start, end time.Time) (bool, error) {
	intervals, err := a.ListBusyIntervals(ctx, actor, integ, cred, start, end)
	if err != nil {
		return false, err
	}
	return entity.SlotAvailable(intervals, start, end), nil
}
