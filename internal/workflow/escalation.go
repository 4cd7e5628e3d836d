package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditflow/backend/internal/actor"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/policy/engine"
	submissiondomain "auditflow/backend/internal/submission/domain"
)

// escalatable is the escalation state of a requirement or finding, loaded under lock.
type escalatable struct {
	auditID string
	level   int
	setLvl  func(int)
	detail  map[string]any
	save    func(ctx context.Context) error
}

func (e *Engine) loadEscalatable(ctx context.Context, kind ledgerdomain.EntityKind, id string) (*escalatable, error) {
	switch kind {
	case ledgerdomain.EntityRequirement:
		r, err := e.requirements.GetRequirementForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Deleted() {
			return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		detail := map[string]any{}
		if r.Deadline != nil {
			detail["deadline"] = r.Deadline.UTC().Format(time.RFC3339)
		}
		return &escalatable{
			auditID: r.AuditID,
			level:   r.EscalationLevel,
			setLvl:  func(l int) { r.EscalationLevel = l; r.UpdatedAt = e.timestamp() },
			detail:  detail,
			save:    func(ctx context.Context) error { return e.requirements.UpdateRequirement(ctx, r) },
		}, nil
	case ledgerdomain.EntityFinding:
		f, err := e.findings.GetFindingForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
		}
		detail := map[string]any{"status": string(f.Status)}
		if f.DueDate != nil {
			detail["due_date"] = f.DueDate.UTC().Format(time.RFC3339)
		}
		return &escalatable{
			auditID: f.AuditID,
			level:   f.EscalationLevel,
			setLvl:  func(l int) { f.EscalationLevel = l; f.UpdatedAt = e.timestamp() },
			detail:  detail,
			save:    func(ctx context.Context) error { return e.findings.UpdateFinding(ctx, f) },
		}, nil
	}
	return nil, invalidInput("entity kind %q cannot be escalated", kind)
}

// Escalate raises the escalation level of a requirement or finding from expectedLevel by one.
// A level other than expectedLevel means another tick or an override got there first and is
// reported as ConcurrentModification. Escalation never changes the workflow state.
func (e *Engine) Escalate(ctx context.Context, kind ledgerdomain.EntityKind, id string, expectedLevel int, reason string, a actor.Actor) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, id, func(ctx context.Context) (*ledgerdomain.Block, error) {
		ent, err := e.loadEscalatable(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		current := fmt.Sprint(ent.level)
		if ent.level != expectedLevel {
			return nil, stateError(KindConcurrentModification, string(kind), id, current, nil, ErrConcurrentModification)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionEscalate,
			Actor:      a,
			AuditID:    ent.auditID,
			EntityKind: string(kind),
			EntityID:   id,
		}); err != nil {
			return nil, stateError(KindOf(err), string(kind), id, current, nil, err)
		}
		next := ent.level + 1
		payload := map[string]any{"from_level": ent.level, "to_level": next, "reason": reason}
		for k, v := range ent.detail {
			payload[k] = v
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    ent.auditID,
			Actor:      a,
			Action:     string(kind) + ".escalated",
			EntityKind: kind,
			EntityID:   id,
			Payload:    payload,
		})
		if err != nil {
			return nil, ledgerError(string(kind), id, current, nil, err)
		}
		ent.setLvl(next)
		if err := ent.save(ctx); err != nil {
			return nil, err
		}
		receipt = receiptFor(id, fmt.Sprint(next), b)
		return b, nil
	})
	e.record(ctx, string(kind), "escalated", err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// OverrideEscalation sets an escalation level directly. It is the only path that may lower a
// level and requires an administrator and a reason.
func (e *Engine) OverrideEscalation(ctx context.Context, kind ledgerdomain.EntityKind, id string, level int, reason string, a actor.Actor) (*Receipt, error) {
	if level < 0 {
		return nil, invalidInput("level must not be negative")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, invalidInput("reason is required")
	}
	var receipt *Receipt
	err := e.mutate(ctx, id, func(ctx context.Context) (*ledgerdomain.Block, error) {
		ent, err := e.loadEscalatable(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		current := fmt.Sprint(ent.level)
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionOverride,
			Actor:      a,
			AuditID:    ent.auditID,
			EntityKind: string(kind),
			EntityID:   id,
			From:       current,
			To:         fmt.Sprint(level),
		}); err != nil {
			return nil, stateError(KindOf(err), string(kind), id, current, nil, err)
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    ent.auditID,
			Actor:      a,
			Action:     "escalation.override",
			EntityKind: kind,
			EntityID:   id,
			Payload:    map[string]any{"from_level": ent.level, "to_level": level, "reason": reason},
		})
		if err != nil {
			return nil, ledgerError(string(kind), id, current, nil, err)
		}
		ent.setLvl(level)
		if err := ent.save(ctx); err != nil {
			return nil, err
		}
		receipt = receiptFor(id, fmt.Sprint(level), b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RecordDeadlineWarning marks that a deadline_approaching notice went out for the requirement's
// current deadline. It returns a nil receipt when the notice was already recorded for deadline
// or the deadline has since changed.
func (e *Engine) RecordDeadlineWarning(ctx context.Context, requirementID string, deadline time.Time, a actor.Actor) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, requirementID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		r, err := e.requirements.GetRequirementForUpdate(ctx, requirementID)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Deleted() {
			return nil, fmt.Errorf("requirement %s: %w", requirementID, ErrNotFound)
		}
		if r.Deadline == nil || !r.Deadline.Equal(deadline) {
			return nil, nil
		}
		if r.WarnedDeadline != nil && r.WarnedDeadline.Equal(deadline) {
			return nil, nil
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionEscalate,
			Actor:      a,
			AuditID:    r.AuditID,
			EntityKind: string(ledgerdomain.EntityRequirement),
			EntityID:   r.ID,
		}); err != nil {
			return nil, err
		}
		now := e.timestamp()
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    r.AuditID,
			Actor:      a,
			Action:     "requirement.deadline_approaching",
			EntityKind: ledgerdomain.EntityRequirement,
			EntityID:   r.ID,
			Payload: map[string]any{
				"deadline":        deadline.UTC().Format(time.RFC3339),
				"hours_remaining": int64(deadline.Sub(now).Hours()),
				"document_type":   r.DocumentType,
			},
		})
		if err != nil {
			return nil, ledgerError("requirement", r.ID, "", nil, err)
		}
		d := deadline.UTC()
		r.WarnedDeadline = &d
		r.UpdatedAt = now
		if err := e.requirements.UpdateRequirement(ctx, r); err != nil {
			return nil, err
		}
		receipt = receiptFor(r.ID, fmt.Sprint(r.EscalationLevel), b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RequirementSatisfied reports whether the requirement's latest revision was approved.
func (e *Engine) RequirementSatisfied(ctx context.Context, requirementID string) (bool, error) {
	revisions, err := e.submissions.ListSubmissionsByRequirement(ctx, requirementID)
	if err != nil {
		return false, err
	}
	for _, s := range revisions {
		if s.Stage == submissiondomain.StageApproved {
			return true, nil
		}
	}
	return false, nil
}
