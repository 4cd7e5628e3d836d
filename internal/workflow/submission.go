package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"auditflow/backend/internal/actor"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/policy/engine"
	"auditflow/backend/internal/submission/domain"
)

// NewSubmission is the input of CreateSubmission.
type NewSubmission struct {
	RequirementID string
	DocumentRef   string
	Actor         actor.Actor
}

// ValidationOutcome carries AI scores written together with the ai_validated transition.
type ValidationOutcome struct {
	JobSeq          int64
	Score           float64
	Confidence      float64
	ComplianceScore *float64
	IssueCount      int
	ProcessingMS    int64
}

// SubmissionTransition requests one submission stage change.
type SubmissionTransition struct {
	SubmissionID string
	// From is the stage the caller believes current; empty skips the optimistic check.
	From      domain.Stage
	To        domain.Stage
	Actor     actor.Actor
	Reason    string
	RequestID string

	Notes        *string
	QualityScore *float64
	// DispatchSeq is stored as the latest validation job sequence on a move to ai_validating.
	DispatchSeq int64
	Validation  *ValidationOutcome
	// Guard runs on the locked, current submission before any other check.
	Guard func(s *domain.Submission) error
}

// GetSubmission returns the submission for id.
func (e *Engine) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	s, err := e.submissions.GetSubmissionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListSubmissions returns every revision submitted against a requirement, oldest first.
func (e *Engine) ListSubmissions(ctx context.Context, requirementID string) ([]*domain.Submission, error) {
	return e.submissions.ListSubmissionsByRequirement(ctx, requirementID)
}

// CreateSubmission records a new revision for a requirement. The first submission is round 1;
// a resubmission after needs_revision or rejected is the previous round + 1. Any other latest
// stage refuses a new submission.
func (e *Engine) CreateSubmission(ctx context.Context, in NewSubmission) (*domain.Submission, *Receipt, error) {
	if in.RequirementID == "" || in.DocumentRef == "" {
		return nil, nil, invalidInput("requirement_id and document_ref are required")
	}
	if err := in.Actor.Validate(); err != nil {
		return nil, nil, invalidInput("%v", err)
	}

	var (
		created *domain.Submission
		receipt *Receipt
	)
	err := e.mutate(ctx, in.RequirementID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		req, err := e.requirements.GetRequirementForUpdate(ctx, in.RequirementID)
		if err != nil {
			return nil, err
		}
		if req == nil || req.Deleted() {
			return nil, fmt.Errorf("requirement %s: %w", in.RequirementID, ErrNotFound)
		}
		revisions, err := e.submissions.ListSubmissionsByRequirement(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		round, previousID := 1, ""
		if n := len(revisions); n > 0 {
			latest := revisions[n-1]
			switch {
			case latest.Stage == domain.StageApproved:
				return nil, stateError(KindConflict, "submission", latest.ID, string(latest.Stage), nil, ErrRequirementSatisfied)
			case !latest.Stage.AllowsResubmission():
				return nil, stateError(KindConflict, "submission", latest.ID, string(latest.Stage), toStrings(latest.Stage.AllowedNext()), ErrActiveSubmission)
			}
			round, previousID = latest.RevisionRound+1, latest.ID
		}

		now := e.timestamp()
		s := &domain.Submission{
			ID:            uuid.New().String(),
			RequirementID: req.ID,
			AuditID:       req.AuditID,
			DocumentRef:   in.DocumentRef,
			SubmitterID:   in.Actor.ID,
			RevisionRound: round,
			Stage:         domain.StageSubmitted,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.Validate(); err != nil {
			return nil, invalidInput("%v", err)
		}
		payload := map[string]any{
			"requirement_id": req.ID,
			"document_ref":   s.DocumentRef,
			"revision_round": s.RevisionRound,
			"stage":          string(s.Stage),
			"actor_role":     actorPayload(in.Actor),
		}
		if previousID != "" {
			payload["previous_submission_id"] = previousID
		}
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    s.AuditID,
			Actor:      in.Actor,
			Action:     "submission.created",
			EntityKind: ledgerdomain.EntitySubmission,
			EntityID:   s.ID,
			Payload:    payload,
		})
		if err != nil {
			return nil, err
		}
		if err := e.submissions.CreateSubmission(ctx, s); err != nil {
			return nil, err
		}
		created, receipt = s, receiptFor(s.ID, string(s.Stage), b)
		return b, nil
	})
	e.record(ctx, "submission", string(domain.StageSubmitted), err)
	if err != nil {
		return nil, nil, err
	}
	return created, receipt, nil
}

// TransitionSubmission moves a submission to t.To. It refuses with ConcurrentModification when
// t.From is stale and with InvalidTransition when the table forbids the move. A retry with the
// same request id returns the original receipt without appending.
func (e *Engine) TransitionSubmission(ctx context.Context, t SubmissionTransition) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, t.SubmissionID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		s, err := e.submissions.GetSubmissionForUpdate(ctx, t.SubmissionID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("submission %s: %w", t.SubmissionID, ErrNotFound)
		}
		current := string(s.Stage)
		allowed := toStrings(s.Stage.AllowedNext())

		if r, err := e.replayed(ctx, t.RequestID, s.ID, string(t.From), string(t.To)); err != nil {
			return nil, conflictError("submission", s.ID, current, allowed, err)
		} else if r != nil {
			receipt = r
			return nil, nil
		}
		if t.Guard != nil {
			if err := t.Guard(s); err != nil {
				return nil, err
			}
		}
		if !t.To.Valid() {
			return nil, stateError(KindInvalidInput, "submission", s.ID, current, allowed, invalidInput("unknown stage %q", t.To))
		}
		if t.From != "" && t.From != s.Stage {
			return nil, stateError(KindConcurrentModification, "submission", s.ID, current, allowed, ErrConcurrentModification)
		}
		if !s.Stage.CanTransition(t.To) {
			return nil, stateError(KindInvalidTransition, "submission", s.ID, current, allowed, ErrInvalidTransition)
		}
		if t.To.NegativeOutcome() && t.Reason == "" {
			return nil, stateError(KindInvalidInput, "submission", s.ID, current, allowed, invalidInput("reason is required for %s", t.To))
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionTransition,
			Actor:      t.Actor,
			AuditID:    s.AuditID,
			EntityKind: string(ledgerdomain.EntitySubmission),
			EntityID:   s.ID,
			OwnerID:    s.SubmitterID,
			From:       current,
			To:         string(t.To),
		}); err != nil {
			return nil, stateError(KindOf(err), "submission", s.ID, current, allowed, err)
		}

		payload := map[string]any{
			"from":           current,
			"to":             string(t.To),
			"revision_round": s.RevisionRound,
			"actor_role":     actorPayload(t.Actor),
		}
		s.Stage = t.To
		if t.Reason != "" {
			payload["reason"] = t.Reason
		}
		if t.To.NegativeOutcome() {
			s.Reason = t.Reason
		}
		if t.Notes != nil {
			s.VerificationNotes = *t.Notes
			payload["notes"] = *t.Notes
		}
		if t.QualityScore != nil {
			s.QualityScore = t.QualityScore
			payload["quality_score"] = ledgerdomain.Decimal(*t.QualityScore)
		}
		if t.To == domain.StageAIValidating && t.DispatchSeq > 0 {
			s.AIJobSeq = t.DispatchSeq
			payload["job_seq"] = t.DispatchSeq
		}
		if v := t.Validation; v != nil {
			score, confidence := v.Score, v.Confidence
			s.AIScore, s.AIConfidence = &score, &confidence
			payload["job_seq"] = v.JobSeq
			payload["ai_score"] = ledgerdomain.Decimal(score)
			payload["ai_confidence"] = ledgerdomain.Decimal(confidence)
			payload["issue_count"] = v.IssueCount
			payload["processing_ms"] = v.ProcessingMS
			if v.ComplianceScore != nil {
				c := *v.ComplianceScore
				s.ComplianceScore = &c
				payload["compliance_score"] = ledgerdomain.Decimal(c)
			}
		}
		if t.RequestID != "" {
			payload["request_id"] = t.RequestID
		}
		if err := s.Validate(); err != nil {
			return nil, stateError(KindInvalidInput, "submission", s.ID, current, allowed, invalidInput("%v", err))
		}
		s.UpdatedAt = e.timestamp()

		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    s.AuditID,
			Actor:      t.Actor,
			Action:     "submission." + string(t.To),
			EntityKind: ledgerdomain.EntitySubmission,
			EntityID:   s.ID,
			Payload:    payload,
		})
		if err != nil {
			return nil, ledgerError("submission", s.ID, current, allowed, err)
		}
		if err := e.submissions.UpdateSubmission(ctx, s); err != nil {
			return nil, err
		}
		if err := e.remember(ctx, t.RequestID, s.ID, current, string(t.To), b); err != nil {
			return nil, err
		}
		receipt = receiptFor(s.ID, string(s.Stage), b)
		return b, nil
	})
	e.record(ctx, "submission", string(t.To), err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// UpdateNotes replaces the auditor's verification notes. Notes may change in any stage,
// including terminal ones.
func (e *Engine) UpdateNotes(ctx context.Context, submissionID, notes string, a actor.Actor) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, submissionID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		s, err := e.submissions.GetSubmissionForUpdate(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionNotes,
			Actor:      a,
			AuditID:    s.AuditID,
			EntityKind: string(ledgerdomain.EntitySubmission),
			EntityID:   s.ID,
			OwnerID:    s.SubmitterID,
		}); err != nil {
			return nil, stateError(KindOf(err), "submission", s.ID, string(s.Stage), nil, err)
		}
		s.VerificationNotes = notes
		s.UpdatedAt = e.timestamp()
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    s.AuditID,
			Actor:      a,
			Action:     "submission.notes_updated",
			EntityKind: ledgerdomain.EntitySubmission,
			EntityID:   s.ID,
			Payload:    map[string]any{"notes": notes, "stage": string(s.Stage)},
		})
		if err != nil {
			return nil, ledgerError("submission", s.ID, string(s.Stage), nil, err)
		}
		if err := e.submissions.UpdateSubmission(ctx, s); err != nil {
			return nil, err
		}
		receipt = receiptFor(s.ID, string(s.Stage), b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RedispatchValidation supersedes the in-flight validation job of a submission that is already
// ai_validating: seq becomes the only job whose result may still be ingested. Results of older
// jobs are discarded as stale from then on.
func (e *Engine) RedispatchValidation(ctx context.Context, submissionID string, seq int64, a actor.Actor) (*Receipt, error) {
	var receipt *Receipt
	err := e.mutate(ctx, submissionID, func(ctx context.Context) (*ledgerdomain.Block, error) {
		s, err := e.submissions.GetSubmissionForUpdate(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
		}
		current := string(s.Stage)
		allowed := toStrings(s.Stage.AllowedNext())
		if s.Stage != domain.StageAIValidating {
			return nil, stateError(KindInvalidTransition, "submission", s.ID, current, allowed, ErrInvalidTransition)
		}
		if seq <= s.AIJobSeq {
			return nil, stateError(KindConcurrentModification, "submission", s.ID, current, allowed, ErrConcurrentModification)
		}
		if err := e.authorize(ctx, engine.Input{
			Action:     engine.ActionTransition,
			Actor:      a,
			AuditID:    s.AuditID,
			EntityKind: string(ledgerdomain.EntitySubmission),
			EntityID:   s.ID,
			OwnerID:    s.SubmitterID,
			From:       current,
			To:         current,
		}); err != nil {
			return nil, stateError(KindOf(err), "submission", s.ID, current, allowed, err)
		}
		superseded := s.AIJobSeq
		s.AIJobSeq = seq
		s.UpdatedAt = e.timestamp()
		b, err := e.ledger.Append(ctx, ledgerdomain.Entry{
			AuditID:    s.AuditID,
			Actor:      a,
			Action:     "submission.ai_redispatched",
			EntityKind: ledgerdomain.EntitySubmission,
			EntityID:   s.ID,
			Payload: map[string]any{
				"from":           current,
				"to":             current,
				"job_seq":        seq,
				"superseded":     superseded,
				"revision_round": s.RevisionRound,
			},
		})
		if err != nil {
			return nil, ledgerError("submission", s.ID, current, allowed, err)
		}
		if err := e.submissions.UpdateSubmission(ctx, s); err != nil {
			return nil, err
		}
		receipt = receiptFor(s.ID, current, b)
		return b, nil
	})
	e.record(ctx, "submission", "ai_redispatched", err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func conflictError(entity, id, current string, allowed []string, err error) error {
	if errors.Is(err, ErrIdempotencyKeyReuse) {
		return stateError(KindConflict, entity, id, current, allowed, err)
	}
	return err
}

func ledgerError(entity, id, current string, allowed []string, err error) error {
	if errors.Is(err, ErrLedgerIntegrity) {
		return stateError(KindLedgerIntegrity, entity, id, current, allowed, err)
	}
	return err
}
