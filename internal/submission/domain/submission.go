package domain

import (
	"errors"
	"time"
)

// Stage is the workflow position of a submission. One vocabulary covers both the review status
// and the validation progress of a document.
type Stage string

const (
	StageSubmitted     Stage = "submitted"
	StageAIValidating  Stage = "ai_validating"
	StageAIValidated   Stage = "ai_validated"
	StageUnderReview   Stage = "under_review"
	StageApproved      Stage = "approved"
	StageNeedsRevision Stage = "needs_revision"
	StageRejected      Stage = "rejected"
	StageEscalated     Stage = "escalated"
)

// transitions is the single adjacency map for submission stages. Every caller goes through it.
var transitions = map[Stage][]Stage{
	StageSubmitted:     {StageAIValidating},
	StageAIValidating:  {StageAIValidated},
	StageAIValidated:   {StageUnderReview, StageAIValidating},
	StageUnderReview:   {StageApproved, StageNeedsRevision, StageRejected, StageEscalated, StageAIValidating},
	StageEscalated:     {StageUnderReview, StageApproved, StageRejected, StageNeedsRevision, StageAIValidating},
	StageNeedsRevision: {},
	StageApproved:      {},
	StageRejected:      {},
}

// Stages lists every stage in workflow order.
var Stages = []Stage{
	StageSubmitted, StageAIValidating, StageAIValidated, StageUnderReview,
	StageApproved, StageNeedsRevision, StageRejected, StageEscalated,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedNext returns the stages reachable from s in one transition.
func (s Stage) AllowedNext() []Stage {
	next := transitions[s]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether to is reachable from s.
func (s Stage) CanTransition(to Stage) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the revision for good (approved or rejected).
func (s Stage) Terminal() bool {
	return s == StageApproved || s == StageRejected
}

// Closed reports whether no further transition of this revision is possible.
func (s Stage) Closed() bool {
	return len(transitions[s]) == 0
}

// AllowsResubmission reports whether a new revision round may follow a submission in s.
func (s Stage) AllowsResubmission() bool {
	return s == StageNeedsRevision || s == StageRejected
}

// NegativeOutcome reports whether s carries a rejection or revision reason.
func (s Stage) NegativeOutcome() bool {
	return s == StageNeedsRevision || s == StageRejected
}

// Submission is one attempt to satisfy a requirement with a document.
type Submission struct {
	ID            string
	RequirementID string
	AuditID       string
	DocumentRef   string
	SubmitterID   string
	RevisionRound int
	Stage         Stage
	AIScore       *float64
	AIConfidence  *float64
	// ComplianceScore is the AI compliance estimate; QualityScore the reviewer's grade.
	ComplianceScore   *float64
	QualityScore      *float64
	Reason            string
	VerificationNotes string
	// AIJobSeq is the sequence number of the latest validation job dispatched for this submission.
	AIJobSeq  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the submission for persistence. Returns an error describing the first validation failure.
func (s *Submission) Validate() error {
	if s.RequirementID == "" {
		return errors.New("requirement_id is required")
	}
	if s.DocumentRef == "" {
		return errors.New("document_ref is required")
	}
	if s.SubmitterID == "" {
		return errors.New("submitter_id is required")
	}
	if s.RevisionRound < 1 {
		return errors.New("revision_round must be at least 1")
	}
	if !s.Stage.Valid() {
		return errors.New("unknown stage")
	}
	if err := checkScore("ai_score", s.AIScore, 10); err != nil {
		return err
	}
	if err := checkScore("ai_confidence", s.AIConfidence, 1); err != nil {
		return err
	}
	if err := checkScore("compliance_score", s.ComplianceScore, 10); err != nil {
		return err
	}
	return checkScore("quality_score", s.QualityScore, 10)
}

func checkScore(name string, v *float64, max float64) error {
	if v != nil && (*v < 0 || *v > max) {
		return errors.New(name + " is out of range")
	}
	return nil
}

// Clone returns a copy of s that shares no pointers with it.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.AIScore = cloneFloat(s.AIScore)
	c.AIConfidence = cloneFloat(s.AIConfidence)
	c.ComplianceScore = cloneFloat(s.ComplianceScore)
	c.QualityScore = cloneFloat(s.QualityScore)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
