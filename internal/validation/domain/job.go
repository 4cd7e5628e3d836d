package domain

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle of one validation job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobRunning    JobStatus = "running"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobSuperseded JobStatus = "superseded"
)

// Finished reports whether the job will not produce (or accept) a result any more.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobSuperseded
}

// Job is one AI validation attempt for a submission. Seq increases by one per dispatch of the
// same submission; only the latest seq may complete the submission's ai_validating stage.
type Job struct {
	ID              string
	SubmissionID    string
	Seq             int64
	Status          JobStatus
	Attempts        int
	Score           *float64
	Confidence      *float64
	ComplianceScore *float64
	Issues          []string
	Recommendations []string
	ProcessingMS    int64
	Error           string
	RequestedBy     string
	RequestedAt     time.Time
	CompletedAt     *time.Time
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Score = cloneFloat(j.Score)
	c.Confidence = cloneFloat(j.Confidence)
	c.ComplianceScore = cloneFloat(j.ComplianceScore)
	c.Issues = append([]string(nil), j.Issues...)
	c.Recommendations = append([]string(nil), j.Recommendations...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Result is what a validator reports for one job.
type Result struct {
	SubmissionID    string   `json:"submission_id"`
	JobSeq          int64    `json:"job_seq"`
	Score           float64  `json:"score"`
	Confidence      float64  `json:"confidence"`
	ComplianceScore *float64 `json:"compliance_score,omitempty"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	ProcessingMS    int64    `json:"processing_time_ms"`
}

// ErrInvalidResult is returned for results with out-of-range scores or missing identity.
var ErrInvalidResult = errors.New("invalid validation result")

// Validate checks identity and score ranges.
func (r *Result) Validate() error {
	switch {
	case r.SubmissionID == "" || r.JobSeq <= 0:
		return errors.New("submission_id and a positive job_seq are required")
	case r.Score < 0 || r.Score > 10:
		return errors.New("score must be between 0 and 10")
	case r.Confidence < 0 || r.Confidence > 1:
		return errors.New("confidence must be between 0 and 1")
	case r.ComplianceScore != nil && (*r.ComplianceScore < 0 || *r.ComplianceScore > 10):
		return errors.New("compliance_score must be between 0 and 10")
	case r.ProcessingMS < 0:
		return errors.New("processing_time_ms must not be negative")
	}
	return nil
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
