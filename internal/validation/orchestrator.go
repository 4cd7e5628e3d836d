// Package validation runs AI validation of submissions off the request path. Each dispatch
// creates a job with the next sequence number for the submission; only a result for the latest
// sequence may move the submission out of ai_validating, so superseded jobs can never regress it.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auditflow/backend/internal/actor"
	findingdomain "auditflow/backend/internal/finding/domain"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/platform/keylock"
	submissiondomain "auditflow/backend/internal/submission/domain"
	"auditflow/backend/internal/validation/domain"
	"auditflow/backend/internal/validation/repository"
	"auditflow/backend/internal/workflow"
)

const intakeBuffer = 256

// Config holds the result policy of the orchestrator.
type Config struct {
	// ScoreThreshold opens an ai_detected finding for results scoring below it.
	ScoreThreshold float64
	// AutoReview moves ai_validated submissions to under_review right after ingestion.
	AutoReview bool
	// AutoApproveScore enables auto-approval at or above this score; 0 disables it.
	AutoApproveScore         float64
	AutoApproveMinConfidence float64
}

// IngestOutcome reports what an ingested result did.
type IngestOutcome struct {
	SubmissionID string                 `json:"submission_id"`
	JobSeq       int64                  `json:"job_seq"`
	Discarded    bool                   `json:"discarded"`
	Stage        submissiondomain.Stage `json:"stage,omitempty"`
	FindingIDs   []string               `json:"finding_ids,omitempty"`
	Receipt      *workflow.Receipt      `json:"receipt,omitempty"`
}

// Status is the poll view of a submission's validation.
type Status struct {
	SubmissionID string                 `json:"submission_id"`
	Stage        submissiondomain.Stage `json:"stage"`
	Job          *domain.Job            `json:"job,omitempty"`
}

// Orchestrator dispatches validation jobs and feeds their results into the workflow engine.
type Orchestrator struct {
	engine *workflow.Engine
	jobs   repository.Repository
	cfg    Config
	locks  *keylock.Locks
	intake chan string
	now    func() time.Time

	mu         sync.RWMutex
	dispatcher Dispatcher

	counter metric.Int64Counter
}

// New returns an orchestrator. dispatcher may be nil, which leaves jobs for the result callback.
func New(engine *workflow.Engine, jobs repository.Repository, dispatcher Dispatcher, cfg Config) *Orchestrator {
	if dispatcher == nil {
		dispatcher = ManualDispatcher{}
	}
	counter, _ := otel.Meter("auditflow/validation").Int64Counter("validation.jobs",
		metric.WithDescription("AI validation jobs by outcome"))
	return &Orchestrator{
		engine:     engine,
		jobs:       jobs,
		cfg:        cfg,
		locks:      keylock.New(),
		intake:     make(chan string, intakeBuffer),
		now:        time.Now,
		dispatcher: dispatcher,
		counter:    counter,
	}
}

// UseDispatcher replaces the dispatcher. Dispatchers that report back through the orchestrator
// are built after it and installed here.
func (o *Orchestrator) UseDispatcher(d Dispatcher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatcher = d
}

// Submit starts validation of a submitted document: it moves the submission to ai_validating
// and dispatches job 1 (or the next sequence).
func (o *Orchestrator) Submit(ctx context.Context, submissionID string, a actor.Actor) (*domain.Job, *workflow.Receipt, error) {
	return o.dispatch(ctx, submissionID, a, false)
}

// Regenerate dispatches a new job for a non-terminal submission. It creates no new submission
// or revision round; the new sequence supersedes any job still in flight.
func (o *Orchestrator) Regenerate(ctx context.Context, submissionID string, a actor.Actor) (*domain.Job, *workflow.Receipt, error) {
	return o.dispatch(ctx, submissionID, a, true)
}

func (o *Orchestrator) dispatch(ctx context.Context, submissionID string, a actor.Actor, regenerate bool) (*domain.Job, *workflow.Receipt, error) {
	unlock, err := o.locks.Lock(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	s, err := o.engine.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	latest, err := o.jobs.LatestJob(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	seq := s.AIJobSeq
	if latest != nil && latest.Seq > seq {
		seq = latest.Seq
	}
	seq++

	var receipt *workflow.Receipt
	if regenerate && s.Stage == submissiondomain.StageAIValidating {
		receipt, err = o.engine.RedispatchValidation(ctx, s.ID, seq, a)
	} else {
		from := submissiondomain.StageSubmitted
		if regenerate {
			from = s.Stage
		}
		receipt, err = o.engine.TransitionSubmission(ctx, workflow.SubmissionTransition{
			SubmissionID: s.ID,
			From:         from,
			To:           submissiondomain.StageAIValidating,
			Actor:        a,
			DispatchSeq:  seq,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	// A crash before the job row exists leaves the submission waiting on a seq nobody runs;
	// Regenerate recovers it.
	job := &domain.Job{
		ID:           uuid.New().String(),
		SubmissionID: s.ID,
		Seq:          seq,
		Status:       domain.JobQueued,
		RequestedBy:  a.ID,
		RequestedAt:  o.now().UTC(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, nil, err
	}
	if err := o.jobs.SupersedeOlder(ctx, s.ID, seq); err != nil {
		log.Printf("validation: supersede jobs before %d for %s: %v", seq, s.ID, err)
	}
	o.count(ctx, "dispatched")

	o.mu.RLock()
	d := o.dispatcher
	o.mu.RUnlock()
	if err := d.Dispatch(ctx, Request{
		JobID:         job.ID,
		SubmissionID:  s.ID,
		JobSeq:        seq,
		RequirementID: s.RequirementID,
		AuditID:       s.AuditID,
		DocumentRef:   s.DocumentRef,
		RevisionRound: s.RevisionRound,
	}); err != nil {
		log.Printf("validation: dispatch job %s for %s: %v", job.ID, s.ID, err)
		o.finish(ctx, job, domain.JobFailed, err.Error())
	}
	return job, receipt, nil
}

// Ingest applies a validator result. A result for anything but the submission's latest job, or
// for a submission no longer in ai_validating, is discarded without error.
func (o *Orchestrator) Ingest(ctx context.Context, r domain.Result) (*IngestOutcome, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResult, err)
	}
	out := &IngestOutcome{SubmissionID: r.SubmissionID, JobSeq: r.JobSeq}

	job, err := o.jobs.GetJob(ctx, r.SubmissionID, r.JobSeq)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("validation job %s/%d: %w", r.SubmissionID, r.JobSeq, workflow.ErrNotFound)
	}
	if job.Status.Finished() {
		return o.discard(ctx, out, job, "job already "+string(job.Status)), nil
	}

	validator := actor.AI(actor.ValidatorID)
	receipt, err := o.engine.TransitionSubmission(ctx, workflow.SubmissionTransition{
		SubmissionID: r.SubmissionID,
		From:         submissiondomain.StageAIValidating,
		To:           submissiondomain.StageAIValidated,
		Actor:        validator,
		RequestID:    fmt.Sprintf("ai-result:%s:%d", r.SubmissionID, r.JobSeq),
		Validation: &workflow.ValidationOutcome{
			JobSeq:          r.JobSeq,
			Score:           r.Score,
			Confidence:      r.Confidence,
			ComplianceScore: r.ComplianceScore,
			IssueCount:      len(r.Issues),
			ProcessingMS:    r.ProcessingMS,
		},
		Guard: func(s *submissiondomain.Submission) error {
			if s.AIJobSeq != r.JobSeq || s.Stage != submissiondomain.StageAIValidating {
				return workflow.ErrValidationJobStale
			}
			return nil
		},
	})
	if errors.Is(err, workflow.ErrValidationJobStale) {
		o.finish(ctx, job, domain.JobSuperseded, "")
		return o.discard(ctx, out, job, "superseded"), nil
	}
	if err != nil {
		return nil, err
	}
	if receipt.Replayed {
		return o.discard(ctx, out, job, "duplicate delivery"), nil
	}

	job.Score, job.Confidence, job.ComplianceScore = &r.Score, &r.Confidence, r.ComplianceScore
	job.Issues, job.Recommendations, job.ProcessingMS = r.Issues, r.Recommendations, r.ProcessingMS
	o.finish(ctx, job, domain.JobCompleted, "")
	o.count(ctx, "completed")

	out.Stage, out.Receipt = submissiondomain.StageAIValidated, receipt
	out.FindingIDs = o.openFindings(ctx, r, validator)

	if !o.cfg.AutoReview {
		return out, nil
	}
	reviewed, err := o.engine.TransitionSubmission(ctx, workflow.SubmissionTransition{
		SubmissionID: r.SubmissionID,
		From:         submissiondomain.StageAIValidated,
		To:           submissiondomain.StageUnderReview,
		Actor:        actor.System(actor.OrchestratorID),
		Reason:       "ready for review after AI validation",
	})
	if err != nil {
		log.Printf("validation: auto review of %s: %v", r.SubmissionID, err)
		return out, nil
	}
	out.Stage, out.Receipt = submissiondomain.StageUnderReview, reviewed

	if !o.autoApprove(r) {
		return out, nil
	}
	approved, err := o.engine.TransitionSubmission(ctx, workflow.SubmissionTransition{
		SubmissionID: r.SubmissionID,
		From:         submissiondomain.StageUnderReview,
		To:           submissiondomain.StageApproved,
		Actor:        validator,
		Reason:       fmt.Sprintf("auto-approved: score %.2f, confidence %.2f", r.Score, r.Confidence),
	})
	if err != nil {
		log.Printf("validation: auto approve of %s: %v", r.SubmissionID, err)
		return out, nil
	}
	out.Stage, out.Receipt = submissiondomain.StageApproved, approved
	return out, nil
}

func (o *Orchestrator) autoApprove(r domain.Result) bool {
	return o.cfg.AutoApproveScore > 0 &&
		r.Score >= o.cfg.AutoApproveScore &&
		r.Confidence >= o.cfg.AutoApproveMinConfidence &&
		len(r.Issues) == 0
}

// openFindings opens one ai_detected finding per issue, or a single finding for a low score
// without issues. Failures are logged; the validated stage is already committed.
func (o *Orchestrator) openFindings(ctx context.Context, r domain.Result, a actor.Actor) []string {
	var drafts []workflow.NewFinding
	for _, issue := range r.Issues {
		drafts = append(drafts, workflow.NewFinding{
			Title:       issueTitle(issue),
			Description: issue,
			Severity:    Classify(issue),
		})
	}
	if len(drafts) == 0 && r.Score < o.cfg.ScoreThreshold {
		drafts = append(drafts, workflow.NewFinding{
			Title:       "AI: score below threshold",
			Description: fmt.Sprintf("AI validation scored %.2f, below the threshold of %.2f", r.Score, o.cfg.ScoreThreshold),
			Severity:    findingdomain.SeverityMajor,
		})
	}
	var ids []string
	for _, d := range drafts {
		d.Source = findingdomain.SourceAIDetected
		d.SubmissionID = r.SubmissionID
		d.Actor = a
		f, _, err := o.engine.CreateFinding(ctx, d)
		if err != nil {
			log.Printf("validation: open finding for %s: %v", r.SubmissionID, err)
			continue
		}
		ids = append(ids, f.ID)
	}
	return ids
}

// Started records that a dispatcher began an attempt on a job.
func (o *Orchestrator) Started(ctx context.Context, submissionID string, seq int64, attempt int) {
	job, err := o.jobs.GetJob(ctx, submissionID, seq)
	if err != nil || job == nil || job.Status.Finished() {
		return
	}
	job.Status, job.Attempts = domain.JobRunning, attempt
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		log.Printf("validation: mark job %s/%d running: %v", submissionID, seq, err)
	}
}

// Fail marks a job failed after its dispatcher gave up. The submission stays in ai_validating
// until the validation is regenerated.
func (o *Orchestrator) Fail(ctx context.Context, submissionID string, seq int64, cause error) {
	job, err := o.jobs.GetJob(ctx, submissionID, seq)
	if err != nil || job == nil || job.Status.Finished() {
		return
	}
	log.Printf("validation: job %s/%d failed: %v", submissionID, seq, cause)
	o.finish(ctx, job, domain.JobFailed, cause.Error())
	o.count(ctx, "failed")
}

// Poll returns the submission's stage and its latest job. It has no side effects.
func (o *Orchestrator) Poll(ctx context.Context, submissionID string) (*Status, error) {
	s, err := o.engine.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	job, err := o.jobs.LatestJob(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return &Status{SubmissionID: s.ID, Stage: s.Stage, Job: job}, nil
}

// Enqueue schedules a submitted document for validation without blocking the caller.
func (o *Orchestrator) Enqueue(submissionID string) {
	select {
	case o.intake <- submissionID:
	default:
		log.Printf("validation: intake queue full, submission %s must be regenerated", submissionID)
	}
}

// BlockAppended enqueues every newly created submission.
func (o *Orchestrator) BlockAppended(ctx context.Context, b *ledgerdomain.Block) {
	if b.EntityKind == ledgerdomain.EntitySubmission && b.Action == "submission.created" {
		o.Enqueue(b.EntityID)
	}
}

// Run drains the intake queue until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	system := actor.System(actor.OrchestratorID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-o.intake:
			if _, _, err := o.Submit(ctx, id, system); err != nil {
				switch workflow.KindOf(err) {
				case workflow.KindConcurrentModification, workflow.KindInvalidTransition:
					log.Printf("validation: submission %s already left submitted: %v", id, err)
				default:
					log.Printf("validation: submit %s: %v", id, err)
				}
			}
		}
	}
}

func (o *Orchestrator) discard(ctx context.Context, out *IngestOutcome, job *domain.Job, why string) *IngestOutcome {
	log.Printf("validation: stale result for %s seq %d discarded: %s", job.SubmissionID, job.Seq, why)
	o.count(ctx, "stale")
	out.Discarded = true
	return out
}

func (o *Orchestrator) finish(ctx context.Context, job *domain.Job, status domain.JobStatus, msg string) {
	now := o.now().UTC()
	job.Status, job.Error, job.CompletedAt = status, msg, &now
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		log.Printf("validation: update job %s/%d: %v", job.SubmissionID, job.Seq, err)
	}
}

func (o *Orchestrator) count(ctx context.Context, outcome string) {
	if o.counter != nil {
		o.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
