package validation

import (
	"context"
	"log"
)

// Request is the job description sent to a validator.
type Request struct {
	JobID         string `json:"job_id"`
	SubmissionID  string `json:"submission_id"`
	JobSeq        int64  `json:"job_seq"`
	RequirementID string `json:"requirement_id"`
	AuditID       string `json:"audit_id"`
	DocumentRef   string `json:"document_ref"`
	RevisionRound int    `json:"revision_round"`
}

// Dispatcher hands a job to a validator. Dispatch must not wait for the validation itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// ManualDispatcher leaves jobs queued for an external validator that reports through the
// result callback.
type ManualDispatcher struct{}

func (ManualDispatcher) Dispatch(ctx context.Context, req Request) error {
	log.Printf("validation: job %s (submission %s seq %d) awaiting external result", req.JobID, req.SubmissionID, req.JobSeq)
	return nil
}
