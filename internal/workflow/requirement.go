package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditflow/backend/internal/actor"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/policy/engine"
	"auditflow/backend/internal/requirement/domain"
)

// RequirementChange holds the editable fields of a requirement; nil fields are left unchanged.
// Escalation level is not editable here.
type RequirementChange struct {
	DocumentType        *string
	Description         *string
	Mandatory           *bool
	Deadline            *time.Time
	ClearDeadline       bool
	ComplianceFramework *string
	PriorityScore       *float64
	RiskLevel           *domain.RiskLevel
	AutoEscalate        *bool
}

// GetRequirement returns the live requirement for id.
func (e *Engine) GetRequirement(ctx context.Context, id string) (*domain.Requirement, error) {
	r, err := e.requirements.GetRequirementByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.Deleted() {
		return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// ListRequirements returns the live requirements of an audit.
func (e *Engine) ListRequirements(ctx context.Context, auditID string) ([]*domain.Requirement, error) {
	return e.requirements.ListRequirementsByAudit(ctx, auditID)
}

// CreateRequirement records a new requirement. ID, escalation level and timestamps are assigned here.
func (e *Engine) CreateRequirement(ctx context.Context, r *domain.Requirement, a actor.Actor) (*domain.Requirement, *Receipt, error) {
	now := e.timestamp()
	req := r.Clone()
	req.ID = uuid.New().String()
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	req.EscalationLevel = 0
	req.WarnedDeadline = nil
	req.DeletedAt = nil
	req.CreatedBy = a.ID
	req.CreatedAt, req.UpdatedAt = now, now
	if err := req.Validate(); err != nil {
		return nil, nil, invalidInput("%v", err)
	}

	var receipt *Receipt
	err := e.mutate(ctx, req.ID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionRequirementWrite,
			Actor:      a,
			AuditID:    req.AuditID,
			EntityKind: string(ledgerdomain.EntityRequirement),
			EntityID:   req.ID,
		}); err != nil {
			return nil, err
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    req.AuditID,
			Actor:      a,
			Action:     "requirement.created",
			EntityKind: ledgerdomain.EntityRequirement,
			EntityID:   req.ID,
			Payload:    requirementPayload(req),
		})
		if err != nil {
			return nil, ledgerError("requirement", req.ID, "", nil, err)
		}
		if err := e.requirements.CreateRequirement(ctx, req); err != nil {
			return nil, err
		}
		receipt = receiptFor(req.ID, "active", b)
		return b, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return req, receipt, nil
}

// UpdateRequirement applies change to a live requirement. Changing the deadline re-arms the
// deadline warning.
func (e *Engine) UpdateRequirement(ctx context.Context, id string, change RequirementChange, a actor.Actor) (*domain.Requirement, *Receipt, error) {
	var (
		updated *domain.Requirement
		receipt *Receipt
	)
	err := e.mutate(ctx, id, func(ctx context.Context) (*ledgerdomain.Block, error) {
		req, err := e.requirements.GetRequirementForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if req == nil || req.Deleted() {
			return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionRequirementWrite,
			Actor:      a,
			AuditID:    req.AuditID,
			EntityKind: string(ledgerdomain.EntityRequirement),
			EntityID:   req.ID,
		}); err != nil {
			return nil, err
		}
		changed := applyChange(req, change)
		if len(changed) == 0 {
			return nil, invalidInput("no fields to update")
		}
		if err := req.Validate(); err != nil {
			return nil, invalidInput("%v", err)
		}
		req.UpdatedAt = e.timestamp()
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    req.AuditID,
			Actor:      a,
			Action:     "requirement.updated",
			EntityKind: ledgerdomain.EntityRequirement,
			EntityID:   req.ID,
			Payload:    map[string]any{"changed": changed},
		})
		if err != nil {
			return nil, ledgerError("requirement", req.ID, "", nil, err)
		}
		if err := e.requirements.UpdateRequirement(ctx, req); err != nil {
			return nil, err
		}
		updated, receipt = req, receiptFor(req.ID, "active", b)
		return b, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, receipt, nil
}

// DeleteRequirement soft-deletes a requirement. Its submissions and history are kept.
func (e *Engine) DeleteRequirement(ctx context.Context, id string, a actor.Actor) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, id, func(ctx context.Context) (*ledgerdomain.Block, error) {
		req, err := e.requirements.GetRequirementForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if req == nil || req.Deleted() {
			return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionRequirementWrite,
			Actor:      a,
			AuditID:    req.AuditID,
			EntityKind: string(ledgerdomain.EntityRequirement),
			EntityID:   req.ID,
		}); err != nil {
			return nil, err
		}
		now := e.timestamp()
		req.DeletedAt = &now
		req.UpdatedAt = now
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    req.AuditID,
			Actor:      a,
			Action:     "requirement.deleted",
			EntityKind: ledgerdomain.EntityRequirement,
			EntityID:   req.ID,
			Payload:    map[string]any{"document_type": req.DocumentType},
		})
		if err != nil {
			return nil, ledgerError("requirement", req.ID, "", nil, err)
		}
		if err := e.requirements.UpdateRequirement(ctx, req); err != nil {
			return nil, err
		}
		receipt = receiptFor(req.ID, "deleted", b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// applyChange copies the set fields of c onto r and returns them keyed by column name.
func applyChange(r *domain.Requirement, c RequirementChange) map[string]any {
	changed := make(map[string]any)
	if c.DocumentType != nil {
		r.DocumentType = strings.TrimSpace(*c.DocumentType)
		changed["document_type"] = r.DocumentType
	}
	if c.Description != nil {
		r.Description = *c.Description
		changed["description"] = r.Description
	}
	if c.Mandatory != nil {
		r.Mandatory = *c.Mandatory
		changed["mandatory"] = r.Mandatory
	}
	if c.ClearDeadline {
		r.Deadline, r.WarnedDeadline = nil, nil
		changed["deadline"] = nil
	} else if c.Deadline != nil {
		d := c.Deadline.UTC()
		r.Deadline = &d
		r.WarnedDeadline = nil
		changed["deadline"] = d.Format(time.RFC3339)
	}
	if c.ComplianceFramework != nil {
		r.ComplianceFramework = *c.ComplianceFramework
		changed["compliance_framework"] = r.ComplianceFramework
	}
	if c.PriorityScore != nil {
		r.PriorityScore = *c.PriorityScore
		changed["priority_score"] = ledgerdomain.Decimal(r.PriorityScore)
	}
	if c.RiskLevel != nil {
		r.RiskLevel = *c.RiskLevel
		changed["risk_level"] = string(r.RiskLevel)
	}
	if c.AutoEscalate != nil {
		r.AutoEscalate = *c.AutoEscalate
		changed["auto_escalate"] = r.AutoEscalate
	}
	return changed
}

func requirementPayload(r *domain.Requirement) map[string]any {
	p := map[string]any{
		"document_type":        r.DocumentType,
		"description":          r.Description,
		"mandatory":            r.Mandatory,
		"compliance_framework": r.ComplianceFramework,
		"priority_score":       ledgerdomain.Decimal(r.PriorityScore),
		"risk_level":           string(r.RiskLevel),
		"auto_escalate":        r.AutoEscalate,
	}
	if r.Deadline != nil {
		p["deadline"] = r.Deadline.UTC().Format(time.RFC3339)
	}
	return p
}
