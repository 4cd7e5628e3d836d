package engine

import (
	"context"

	"auditflow/backend/internal/actor"
)

// Actions evaluated by the transition policy.
const (
	ActionTransition       = "transition"
	ActionOverride         = "escalation_override"
	ActionRequirementWrite = "requirement_write"
	ActionNotes            = "verification_notes"
	ActionFindingCreate    = "finding_create"
	ActionLedgerAdmin      = "ledger_admin"
	ActionEscalate         = "escalate"
	ActionPolicyAdmin      = "policy_admin"
)

// Input describes one requested mutation for authorization.
type Input struct {
	Action     string
	Actor      actor.Actor
	AuditID    string
	EntityKind string
	EntityID   string
	// OwnerID is the submitter of a submission; AssigneeID the assignee of a finding.
	OwnerID    string
	AssigneeID string
	From       string
	To         string
}

// Authorizer decides whether an actor may perform a mutation.
type Authorizer interface {
	Allow(ctx context.Context, in Input) (bool, error)
}
