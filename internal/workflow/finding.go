package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/finding/domain"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/policy/engine"
)

// NewFinding is the input of CreateFinding.
type NewFinding struct {
	// AuditID is required for meeting findings; submission findings take the submission's audit.
	AuditID      string
	Title        string
	Description  string
	Severity     domain.Severity
	Priority     domain.Priority
	Source       domain.Source
	SubmissionID string
	MeetingID    string
	AssigneeID   string
	DueDate      *time.Time
	Actor        actor.Actor
}

// FindingTransition requests one finding status change. Reason is mandatory.
type FindingTransition struct {
	FindingID string
	From      domain.Status
	To        domain.Status
	Actor     actor.Actor
	Reason    string
	RequestID string
}

// GetFinding returns the finding for id.
func (e *Engine) GetFinding(ctx context.Context, id string) (*domain.Finding, error) {
	f, err := e.findings.GetFindingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}
	return f, nil
}

// ListFindings returns the findings of an audit.
func (e *Engine) ListFindings(ctx context.Context, auditID string) ([]*domain.Finding, error) {
	return e.findings.ListFindingsByAudit(ctx, auditID)
}

// ListSubmissionFindings returns the findings raised against one submission.
func (e *Engine) ListSubmissionFindings(ctx context.Context, submissionID string) ([]*domain.Finding, error) {
	return e.findings.ListFindingsBySubmission(ctx, submissionID)
}

// CreateFinding opens a finding. The reference rule is checked before anything is written, so a
// finding with a bad reference is never partially created.
func (e *Engine) CreateFinding(ctx context.Context, in NewFinding) (*domain.Finding, *Receipt, error) {
	if in.Source == "" {
		in.Source = domain.SourceManual
	}
	now := e.timestamp()
	f := &domain.Finding{
		ID:           uuid.New().String(),
		AuditID:      in.AuditID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Severity:     in.Severity,
		Status:       domain.StatusOpen,
		Priority:     in.Priority,
		Source:       in.Source,
		SubmissionID: in.SubmissionID,
		MeetingID:    in.MeetingID,
		AssigneeID:   in.AssigneeID,
		DueDate:      in.DueDate,
		CreatedBy:    in.Actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.CheckReference(); err != nil {
		return nil, nil, stateError(KindReferenceConflict, "finding", "", "", nil, fmt.Errorf("%w: %v", ErrReferenceConflict, err))
	}
	if f.DueDate == nil && f.Severity.Valid() {
		due := now.Add(f.Severity.SLA())
		f.DueDate = &due
	}

	var receipt *Receipt
	err := e.mutate(ctx, f.ID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		if f.SubmissionID != "" {
			s, err := e.submissions.GetSubmissionByID(ctx, f.SubmissionID)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return nil, fmt.Errorf("submission %s: %w", f.SubmissionID, ErrNotFound)
			}
			if f.AuditID != "" && f.AuditID != s.AuditID {
				return nil, invalidInput("submission %s belongs to audit %s", s.ID, s.AuditID)
			}
			f.AuditID = s.AuditID
		}
		if err := f.Validate(); err != nil {
			return nil, invalidInput("%v", err)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionFindingCreate,
			Actor:      in.Actor,
			AuditID:    f.AuditID,
			EntityKind: string(ledgerdomain.EntityFinding),
			EntityID:   f.ID,
			AssigneeID: f.AssigneeID,
			To:         string(f.Status),
		}); err != nil {
			return nil, err
		}

		payload := map[string]any{
			"title":       f.Title,
			"description": f.Description,
			"severity":    string(f.Severity),
			"priority":    string(f.Priority),
			"source":      string(f.Source),
			"status":      string(f.Status),
			"assignee_id": f.AssigneeID,
			"actor_role":  actorPayload(in.Actor),
		}
		if f.SubmissionID != "" {
			payload["submission_id"] = f.SubmissionID
		}
		if f.MeetingID != "" {
			payload["meeting_id"] = f.MeetingID
		}
		if f.DueDate != nil {
			payload["due_date"] = f.DueDate.UTC().Format(time.RFC3339)
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    f.AuditID,
			Actor:      in.Actor,
			Action:     "finding.created",
			EntityKind: ledgerdomain.EntityFinding,
			EntityID:   f.ID,
			Payload:    payload,
		})
		if err != nil {
			return nil, ledgerError("finding", f.ID, "", nil, err)
		}
		if err := e.findings.CreateFinding(ctx, f); err != nil {
			return nil, err
		}
		receipt = receiptFor(f.ID, string(f.Status), b)
		return b, nil
	})
	e.record(ctx, "finding", string(domain.StatusOpen), err)
	if err != nil {
		return nil, nil, err
	}
	return f, receipt, nil
}

// TransitionFinding moves a finding to t.To under the finding table. Closed is terminal.
func (e *Engine) TransitionFinding(ctx context.Context, t FindingTransition) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, t.FindingID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		f, err := e.findings.GetFindingForUpdate(ctx, t.FindingID)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("finding %s: %w", t.FindingID, ErrNotFound)
		}
		current := string(f.Status)
		allowed := toStrings(f.Status.AllowedNext())

		if r, err := e.replayed(ctx, t.RequestID, f.ID, string(t.From), string(t.To)); err != nil {
			return nil, conflictError("finding", f.ID, current, allowed, err)
		} else if r != nil {
			receipt = r
			return nil, nil
		}
		if strings.TrimSpace(t.Reason) == "" {
			return nil, stateError(KindInvalidInput, "finding", f.ID, current, allowed, invalidInput("reason is required"))
		}
		if !t.To.Valid() {
			return nil, stateError(KindInvalidInput, "finding", f.ID, current, allowed, invalidInput("unknown status %q", t.To))
		}
		if t.From != "" && t.From != f.Status {
			return nil, stateError(KindConcurrentModification, "finding", f.ID, current, allowed, ErrConcurrentModification)
		}
		if !f.Status.CanTransition(t.To) {
			return nil, stateError(KindInvalidTransition, "finding", f.ID, current, allowed, ErrInvalidTransition)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionTransition,
			Actor:      t.Actor,
			AuditID:    f.AuditID,
			EntityKind: string(ledgerdomain.EntityFinding),
			EntityID:   f.ID,
			AssigneeID: f.AssigneeID,
			From:       current,
			To:         string(t.To),
		}); err != nil {
			return nil, stateError(KindOf(err), "finding", f.ID, current, allowed, err)
		}

		f.Status = t.To
		f.UpdatedAt = e.timestamp()
		payload := map[string]any{
			"from":       current,
			"to":         string(t.To),
			"reason":     t.Reason,
			"actor_role": actorPayload(t.Actor),
		}
		if t.RequestID != "" {
			payload["request_id"] = t.RequestID
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    f.AuditID,
			Actor:      t.Actor,
			Action:     "finding." + string(t.To),
			EntityKind: ledgerdomain.EntityFinding,
			EntityID:   f.ID,
			Payload:    payload,
		})
		if err != nil {
			return nil, ledgerError("finding", f.ID, current, allowed, err)
		}
		if err := e.findings.UpdateFinding(ctx, f); err != nil {
			return nil, err
		}
		if err := e.remember(ctx, t.RequestID, f.ID, current, string(t.To), b); err != nil {
			return nil, err
		}
		receipt = receiptFor(f.ID, string(f.Status), b)
		return b, nil
	})
	e.record(ctx, "finding", string(t.To), err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
