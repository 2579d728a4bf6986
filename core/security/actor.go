package security

import (
	"github.com/google/uuid"
)

type Capability string

const (
	CapManageAllIntegrations Capability = "calendar_integrations.manage_all"
	CapViewAllIntegrations   Capability = "calendar_integrations.view_all"
)

// Actor is the identity an operation runs on behalf of.
type Actor struct {
	UserID       uuid.UUID
	Capabilities []Capability
	// System actors are background jobs acting for integration owners.
	System bool
}

func UserActor(userID uuid.UUID, caps ...Capability) Actor {
	return Actor{UserID: userID, Capabilities: caps}
}

func SystemActor() Actor {
	return Actor{System: true}
}

func (a Actor) Has(c Capability) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

func (a Actor) IsAnonymous() bool {
	return !a.System && a.UserID == uuid.Nil
}

func CanManageIntegration(actor Actor, ownerID uuid.UUID) bool {
	if actor.System {
		return true
	}
	if actor.IsAnonymous() {
		return false
	}
	return actor.UserID == ownerID || actor.Has(CapManageAllIntegrations)
}

func CanViewIntegration(actor Actor, ownerID uuid.UUID) bool {
	return CanManageIntegration(actor, ownerID) || (!actor.IsAnonymous() && actor.Has(CapViewAllIntegrations))
}
