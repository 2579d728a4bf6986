package provider

import (
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/security"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/entity"

	"github.com/google/uuid"
)

// Guard applies the integration permission checks shared by all adapters.
type Guard struct {
	policy string
}

func NewGuard(policy string) Guard {
	if policy != config.DenialPolicyFailClosed {
		policy = config.DenialPolicyFailOpen
	}
	return Guard{policy: policy}
}

func (g Guard) FailOpen() bool {
	return g.policy == config.DenialPolicyFailOpen
}

// Read reports whether a read may proceed. A denial under fail_open returns
// (false, nil) and the caller answers with a neutral result.
func (g Guard) Read(actor security.Actor, integ *entity.CalendarIntegration, op string) (bool, error) {
	return g.ReadOwner(actor, integ.UserID, op)
}

// ReadOwner is Read for data that belongs to ownerID as a whole.
func (g Guard) ReadOwner(actor security.Actor, ownerID uuid.UUID, op string) (bool, error) {
	if security.CanViewIntegration(actor, ownerID) {
		return true, nil
	}
	logger.Warn("Provider:Guard:ReadDenied",
		"operation", op,
		"owner_id", ownerID.String(),
		"actor_id", actor.UserID.String(),
		"policy", g.policy,
	)
	if g.FailOpen() {
		return false, nil
	}
	return false, errors.NewAppError(errors.ErrForbidden, "not allowed to read this calendar integration", nil)
}

func (g Guard) Write(actor security.Actor, integ *entity.CalendarIntegration, op string) error {
	if security.CanManageIntegration(actor, integ.UserID) {
		return nil
	}
	logger.Warn("Provider:Guard:WriteDenied",
		"operation", op,
		"integration_id", integ.ID.String(),
		"actor_id", actor.UserID.String(),
	)
	return errors.NewAppError(errors.ErrForbidden, "not allowed to modify this calendar integration", nil)
}
