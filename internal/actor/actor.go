// Package actor identifies who is acting on the engine: a human user, the AI validator, or the
// system itself (scheduler, orchestrator).
package actor

import (
	"context"
	"errors"
)

// Type is the kind of actor recorded on every ledger block.
type Type string

const (
	TypeUser   Type = "user"
	TypeAI     Type = "ai"
	TypeSystem Type = "system"
)

// Role is the product role of a user actor.
type Role string

const (
	RoleAuditee Role = "auditee"
	RoleAuditor Role = "auditor"
	RoleAdmin   Role = "admin"
)

// Well-known non-human actor ids.
const (
	OrchestratorID = "ai-orchestrator"
	ValidatorID    = "ai-validator"
	SchedulerID    = "escalation-scheduler"
)

// ErrMissingActor is returned when an operation needs an actor and none was supplied.
var ErrMissingActor = errors.New("actor is required")

// Actor is the identity performing an operation.
type Actor struct {
	ID   string
	Type Type
	Role Role
}

// Validate checks that the actor has an id and a known type.
func (a Actor) Validate() error {
	if a.ID == "" {
		return ErrMissingActor
	}
	switch a.Type {
	case TypeUser, TypeAI, TypeSystem:
	default:
		return errors.New("actor type must be user, ai or system")
	}
	switch a.Role {
	case "", RoleAuditee, RoleAuditor, RoleAdmin:
	default:
		return errors.New("actor role must be auditee, auditor or admin")
	}
	return nil
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// System returns the system actor with the given id.
func System(id string) Actor { return Actor{ID: id, Type: TypeSystem} }

// AI returns the AI actor with the given id.
func AI(id string) Actor { return Actor{ID: id, Type: TypeAI} }

type contextKey struct{ name string }

var actorKey = contextKey{"actor"}

// WithActor returns a context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// FromContext returns the actor from context and true if set; otherwise a zero Actor, false.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
