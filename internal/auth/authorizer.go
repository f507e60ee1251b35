package auth

import (
	"context"
	"fmt"
)

type Action string

const (
	ActionConfirm          Action = "confirm"
	ActionReject           Action = "reject"
	ActionCancel           Action = "cancel"
	ActionComplete         Action = "complete"
	ActionManageRecurrence Action = "manage_recurrence"
	ActionCreateBlock      Action = "create_block"
	ActionManageBlock      Action = "manage_block"
)

// Resource identifies what an action targets. ProviderID/ConsumerID are set
// when the resource is an appointment; blocks carry an optional provider and
// their creator.
type Resource struct {
	TenantID   string
	ProviderID string
	ConsumerID string
	CreatedBy  string
}

// AuthorizationError is a denial from the gate. It is never retried.
type AuthorizationError struct {
	ActorID string
	Action  Action
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to %s", e.ActorID, e.Action)
}

// Authorizer is the boolean gate this subsystem consults before guarded
// operations. Real deployments plug in the platform's permission service;
// Allow returns nil or an *AuthorizationError.
type Authorizer interface {
	Allow(ctx context.Context, actorID string, action Action, res Resource) error
}

// OwnershipAuthorizer grants based on the ownership rules of the scheduling
// domain: the provider confirms, rejects and completes; either party cancels;
// a provider may block their own schedule; tenant-wide blocks and other
// providers' blocks require an admin actor.
type OwnershipAuthorizer struct {
	// AdminIDs are actors allowed to manage tenant-wide blocks.
	AdminIDs map[string]struct{}
}

func NewOwnershipAuthorizer(adminIDs ...string) *OwnershipAuthorizer {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &OwnershipAuthorizer{AdminIDs: admins}
}

func (a *OwnershipAuthorizer) Allow(ctx context.Context, actorID string, action Action, res Resource) error {
	if actorID == "" {
		return &AuthorizationError{ActorID: actorID, Action: action}
	}

	switch action {
	case ActionConfirm, ActionReject, ActionComplete:
		if actorID == res.ProviderID {
			return nil
		}
	case ActionCancel:
		if actorID == res.ProviderID || actorID == res.ConsumerID {
			return nil
		}
	case ActionManageRecurrence:
		if actorID == res.ProviderID {
			return nil
		}
	case ActionCreateBlock, ActionManageBlock:
		if a.isAdmin(actorID) {
			return nil
		}
		if res.ProviderID != "" && actorID == res.ProviderID {
			return nil
		}
	}
	return &AuthorizationError{ActorID: actorID, Action: action}
}

func (a *OwnershipAuthorizer) isAdmin(actorID string) bool {
	_, ok := a.AdminIDs[actorID]
	return ok
}
