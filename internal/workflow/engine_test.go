package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auditflow/backend/internal/actor"
	findingdomain "auditflow/backend/internal/finding/domain"
	findingrepo "auditflow/backend/internal/finding/repository"
	"auditflow/backend/internal/ledger"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	ledgerrepo "auditflow/backend/internal/ledger/repository"
	"auditflow/backend/internal/policy/engine"
	requirementdomain "auditflow/backend/internal/requirement/domain"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	"auditflow/backend/internal/submission/domain"
	submissionrepo "auditflow/backend/internal/submission/repository"
	"auditflow/backend/internal/workflow/repository"
)

var (
	auditor = actor.Actor{ID: "auditor-1", Type: actor.TypeUser, Role: actor.RoleAuditor}
	auditee = actor.Actor{ID: "auditee-1", Type: actor.TypeUser, Role: actor.RoleAuditee}
	admin   = actor.Actor{ID: "admin-1", Type: actor.TypeUser, Role: actor.RoleAdmin}
	system  = actor.System(actor.OrchestratorID)
)

type fixture struct {
	engine       *Engine
	requirements *requirementrepo.MemoryRepository
	submissions  *submissionrepo.MemoryRepository
	findings     *findingrepo.MemoryRepository
	ledger       *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authz, err := engine.NewOPAEvaluator(nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	f := &fixture{
		requirements: requirementrepo.NewMemoryRepository(),
		submissions:  submissionrepo.NewMemoryRepository(),
		findings:     findingrepo.NewMemoryRepository(),
		ledger:       ledger.New(ledgerrepo.NewMemoryRepository(), nil),
	}
	f.engine = NewEngine(f.requirements, f.submissions, f.findings, repository.NewMemoryRequestRepository(), f.ledger, nil, authz)
	return f
}

func (f *fixture) requirement(t *testing.T) *requirementdomain.Requirement {
	t.Helper()
	r, _, err := f.engine.CreateRequirement(context.Background(), &requirementdomain.Requirement{
		AuditID:      "audit-1",
		DocumentType: "access policy",
		Mandatory:    true,
	}, auditor)
	if err != nil {
		t.Fatalf("CreateRequirement: %v", err)
	}
	return r
}

func (f *fixture) submission(t *testing.T, reqID string) *domain.Submission {
	t.Helper()
	s, _, err := f.engine.CreateSubmission(context.Background(), NewSubmission{RequirementID: reqID, DocumentRef: "doc-1", Actor: auditee})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return s
}

// advance moves a submission through the given stages as the system, then the auditor.
func (f *fixture) advance(t *testing.T, id string, stages ...domain.Stage) {
	t.Helper()
	for _, to := range stages {
		a := system
		if to != domain.StageAIValidating && to != domain.StageAIValidated && to != domain.StageUnderReview {
			a = auditor
		}
		tr := SubmissionTransition{SubmissionID: id, To: to, Actor: a}
		if to.NegativeOutcome() {
			tr.Reason = "incomplete"
		}
		if to == domain.StageAIValidated {
			tr.Validation = &ValidationOutcome{JobSeq: 1, Score: 8, Confidence: 0.9}
		}
		if _, err := f.engine.TransitionSubmission(context.Background(), tr); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
}

func (f *fixture) chainLength(t *testing.T) int64 {
	t.Helper()
	v, err := f.ledger.VerifyChain(context.Background(), "audit-1")
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !v.Valid {
		t.Fatalf("chain invalid at %v: %s", v.DivergentBlock, v.Reason)
	}
	return v.Length
}

func TestSubmissionLifecycle(t *testing.T) {
	f := newFixture(t)
	req := f.requirement(t)
	s := f.submission(t, req.ID)
	if s.Stage != domain.StageSubmitted || s.RevisionRound != 1 {
		t.Fatalf("new submission = %s round %d, want submitted round 1", s.Stage, s.RevisionRound)
	}
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview)

	notes, quality := "looks good", 9.0
	receipt, err := f.engine.TransitionSubmission(context.Background(), SubmissionTransition{
		SubmissionID: s.ID, From: domain.StageUnderReview, To: domain.StageApproved,
		Actor: auditor, Notes: &notes, QualityScore: &quality,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if receipt.State != string(domain.StageApproved) || receipt.BlockHash == "" {
		t.Errorf("receipt = %+v", receipt)
	}
	// requirement.created, submission.created and five transitions
	if receipt.BlockNumber != 6 {
		t.Errorf("receipt block = %d, want 6", receipt.BlockNumber)
	}
	got, _ := f.engine.GetSubmission(context.Background(), s.ID)
	if got.Stage != domain.StageApproved || got.VerificationNotes != notes || got.QualityScore == nil || *got.QualityScore != 9 {
		t.Errorf("stored submission = %+v", got)
	}
	if got.AIScore == nil || *got.AIScore != 8 {
		t.Errorf("AIScore = %v, want 8", got.AIScore)
	}
	if n := f.chainLength(t); n != 6 {
		t.Errorf("chain length = %d, want 6", n)
	}
}

func TestTransitionSubmission_TerminalStatesRefuseEverything(t *testing.T) {
	for _, terminal := range []domain.Stage{domain.StageApproved, domain.StageRejected} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			s := f.submission(t, f.requirement(t).ID)
			f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview, terminal)
			before := f.chainLength(t)
			for _, to := range domain.Stages {
				_, err := f.engine.TransitionSubmission(context.Background(), SubmissionTransition{
					SubmissionID: s.ID, To: to, Actor: auditor, Reason: "retry",
				})
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s err = %v, want ErrInvalidTransition", terminal, to, err)
				}
				var te *TransitionError
				if errors.As(err, &te) && te.Current != string(terminal) {
					t.Errorf("reported current = %q, want %q", te.Current, terminal)
				}
			}
			if after := f.chainLength(t); after != before {
				t.Errorf("refused transitions appended %d blocks", after-before)
			}
		})
	}
}

func TestTransitionSubmission_StaleFromIsConcurrentModification(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	_, err := f.engine.TransitionSubmission(context.Background(), SubmissionTransition{
		SubmissionID: s.ID, From: domain.StageUnderReview, To: domain.StageApproved, Actor: auditor,
	})
	var te *TransitionError
	if !errors.As(err, &te) || te.Kind != KindConcurrentModification {
		t.Fatalf("err = %v, want ConcurrentModification", err)
	}
	if te.Current != string(domain.StageSubmitted) || len(te.Allowed) != 1 || te.Allowed[0] != string(domain.StageAIValidating) {
		t.Errorf("TransitionError = %+v, want current submitted allowed [ai_validating]", te)
	}
}

func TestTransitionSubmission_ConcurrentVerify(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview)
	before := f.chainLength(t)

	outcomes := []domain.Stage{domain.StageApproved, domain.StageNeedsRevision}
	errs := make([]error, len(outcomes))
	var wg sync.WaitGroup
	for i, to := range outcomes {
		wg.Add(1)
		go func(i int, to domain.Stage) {
			defer wg.Done()
			_, errs[i] = f.engine.TransitionSubmission(context.Background(), SubmissionTransition{
				SubmissionID: s.ID, From: domain.StageUnderReview, To: to, Actor: auditor, Reason: "review",
			})
		}(i, to)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConcurrentModification):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Errorf("succeeded=%d conflicts=%d, want 1 and 1", succeeded, conflicts)
	}
	if after := f.chainLength(t); after != before+1 {
		t.Errorf("appended %d blocks, want 1", after-before)
	}
}

func TestTransitionSubmission_Idempotent(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview)
	tr := SubmissionTransition{SubmissionID: s.ID, From: domain.StageUnderReview, To: domain.StageApproved, Actor: auditor, RequestID: "req-42"}

	first, err := f.engine.TransitionSubmission(context.Background(), tr)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	length := f.chainLength(t)
	second, err := f.engine.TransitionSubmission(context.Background(), tr)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !second.Replayed || second.BlockNumber != first.BlockNumber || second.BlockHash != first.BlockHash {
		t.Errorf("retry receipt = %+v, want replay of %+v", second, first)
	}
	if f.chainLength(t) != length {
		t.Error("retry appended a block")
	}

	tr.To = domain.StageRejected
	tr.Reason = "different"
	if _, err := f.engine.TransitionSubmission(context.Background(), tr); !errors.Is(err, ErrIdempotencyKeyReuse) {
		t.Errorf("reused key err = %v, want ErrIdempotencyKeyReuse", err)
	}

	// Keys are scoped to the entity they were used on.
	other := f.submission(t, f.requirement(t).ID)
	f.advance(t, other.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview)
	tr = SubmissionTransition{SubmissionID: other.ID, From: domain.StageUnderReview, To: domain.StageApproved, Actor: auditor, RequestID: "req-42"}
	got, err := f.engine.TransitionSubmission(context.Background(), tr)
	if err != nil {
		t.Fatalf("same key on another submission: %v", err)
	}
	if got.Replayed || got.BlockNumber == first.BlockNumber {
		t.Errorf("receipt = %+v, want a new transition", got)
	}
}

func TestTransitionSubmission_Authorization(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview)

	_, err := f.engine.TransitionSubmission(context.Background(), SubmissionTransition{SubmissionID: s.ID, To: domain.StageApproved, Actor: auditee})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("auditee approve err = %v, want ErrForbidden", err)
	}
	_, err = f.engine.TransitionSubmission(context.Background(), SubmissionTransition{SubmissionID: s.ID, To: domain.StageRejected, Actor: auditor})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("reject without reason err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateSubmission_Rounds(t *testing.T) {
	f := newFixture(t)
	req := f.requirement(t)
	first := f.submission(t, req.ID)

	_, _, err := f.engine.CreateSubmission(context.Background(), NewSubmission{RequirementID: req.ID, DocumentRef: "doc-2", Actor: auditee})
	if !errors.Is(err, ErrActiveSubmission) {
		t.Fatalf("second submission while first is active err = %v, want ErrActiveSubmission", err)
	}

	f.advance(t, first.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview, domain.StageNeedsRevision)
	second := f.submission(t, req.ID)
	if second.RevisionRound != 2 {
		t.Errorf("resubmission round = %d, want 2", second.RevisionRound)
	}
	original, _ := f.engine.GetSubmission(context.Background(), first.ID)
	if original.Stage != domain.StageNeedsRevision || original.Reason != "incomplete" {
		t.Errorf("original revision changed: %s %q", original.Stage, original.Reason)
	}

	f.advance(t, second.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview, domain.StageApproved)
	_, _, err = f.engine.CreateSubmission(context.Background(), NewSubmission{RequirementID: req.ID, DocumentRef: "doc-3", Actor: auditee})
	if !errors.Is(err, ErrRequirementSatisfied) {
		t.Errorf("submission after approval err = %v, want ErrRequirementSatisfied", err)
	}
}

func TestUpdateNotes_AllowedInTerminalStage(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated, domain.StageUnderReview, domain.StageApproved)
	if _, err := f.engine.UpdateNotes(context.Background(), s.ID, "archived copy in vault", auditor); err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	got, _ := f.engine.GetSubmission(context.Background(), s.ID)
	if got.VerificationNotes != "archived copy in vault" || got.Stage != domain.StageApproved {
		t.Errorf("submission = %s %q", got.Stage, got.VerificationNotes)
	}
	if _, err := f.engine.UpdateNotes(context.Background(), s.ID, "x", auditee); !errors.Is(err, ErrForbidden) {
		t.Errorf("auditee notes err = %v, want ErrForbidden", err)
	}
}

func TestFindingTransitions(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	finding, _, err := f.engine.CreateFinding(context.Background(), NewFinding{
		Title: "Unsigned policy", Severity: findingdomain.SeverityMajor, SubmissionID: s.ID, Actor: auditor,
	})
	if err != nil {
		t.Fatalf("CreateFinding: %v", err)
	}
	if finding.AuditID != "audit-1" || finding.Status != findingdomain.StatusOpen || finding.DueDate == nil {
		t.Fatalf("finding = %+v", finding)
	}

	if _, err := f.engine.TransitionFinding(context.Background(), FindingTransition{FindingID: finding.ID, To: findingdomain.StatusClosed, Actor: auditor}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("transition without reason err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.engine.TransitionFinding(context.Background(), FindingTransition{
		FindingID: finding.ID, From: findingdomain.StatusOpen, To: findingdomain.StatusClosed, Actor: auditor, Reason: "accepted risk",
	}); err != nil {
		t.Fatalf("open -> closed: %v", err)
	}
	_, err = f.engine.TransitionFinding(context.Background(), FindingTransition{
		FindingID: finding.ID, From: findingdomain.StatusClosed, To: findingdomain.StatusOpen, Actor: auditor, Reason: "reopen",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("closed -> open err = %v, want ErrInvalidTransition", err)
	}
	if KindOf(err) != KindInvalidTransition {
		t.Errorf("KindOf = %s, want %s", KindOf(err), KindInvalidTransition)
	}
}

func TestFindingTransitions_AssigneeMayResolve(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	finding, _, err := f.engine.CreateFinding(context.Background(), NewFinding{
		Title: "Expired certificate", Severity: findingdomain.SeverityMinor, SubmissionID: s.ID, AssigneeID: auditee.ID, Actor: auditor,
	})
	if err != nil {
		t.Fatalf("CreateFinding: %v", err)
	}
	if _, err := f.engine.TransitionFinding(context.Background(), FindingTransition{FindingID: finding.ID, To: findingdomain.StatusInProgress, Actor: auditee, Reason: "renewing"}); err != nil {
		t.Fatalf("assignee start: %v", err)
	}
	if _, err := f.engine.TransitionFinding(context.Background(), FindingTransition{FindingID: finding.ID, To: findingdomain.StatusClosed, Actor: auditee, Reason: "done"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("assignee close err = %v, want ErrForbidden", err)
	}
}

func TestCreateFinding_ReferenceConflict(t *testing.T) {
	f := newFixture(t)
	s := f.submission(t, f.requirement(t).ID)
	before := f.chainLength(t)
	testCases := []struct {
		name string
		in   NewFinding
	}{
		{"neither", NewFinding{AuditID: "audit-1", Title: "t", Severity: findingdomain.SeverityMinor, Actor: auditor}},
		{"both", NewFinding{AuditID: "audit-1", Title: "t", Severity: findingdomain.SeverityMinor, SubmissionID: s.ID, MeetingID: "m-1", Actor: auditor}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.engine.CreateFinding(context.Background(), tc.in)
			if !errors.Is(err, ErrReferenceConflict) {
				t.Errorf("err = %v, want ErrReferenceConflict", err)
			}
			if KindOf(err) != KindReferenceConflict {
				t.Errorf("KindOf = %s", KindOf(err))
			}
		})
	}
	if after := f.chainLength(t); after != before {
		t.Errorf("refused findings appended %d blocks", after-before)
	}
	list, _ := f.engine.ListFindings(context.Background(), "audit-1")
	if len(list) != 0 {
		t.Errorf("refused findings were stored: %d", len(list))
	}

	meeting, _, err := f.engine.CreateFinding(context.Background(), NewFinding{
		AuditID: "audit-1", Title: "Kickoff gap", Severity: findingdomain.SeverityInformational, MeetingID: "m-1", Actor: auditor,
	})
	if err != nil {
		t.Fatalf("meeting finding: %v", err)
	}
	if meeting.Priority != findingdomain.PriorityLow {
		t.Errorf("priority = %s, want low", meeting.Priority)
	}
}

func TestRequirementCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.requirement(t)

	if _, _, err := f.engine.CreateRequirement(ctx, &requirementdomain.Requirement{AuditID: "audit-1", DocumentType: "x"}, auditee); !errors.Is(err, ErrForbidden) {
		t.Errorf("auditee create err = %v, want ErrForbidden", err)
	}

	desc := "signed by CISO"
	updated, _, err := f.engine.UpdateRequirement(ctx, req.ID, RequirementChange{Description: &desc}, auditor)
	if err != nil {
		t.Fatalf("UpdateRequirement: %v", err)
	}
	if updated.Description != desc {
		t.Errorf("Description = %q", updated.Description)
	}
	if _, _, err := f.engine.UpdateRequirement(ctx, req.ID, RequirementChange{}, auditor); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty update err = %v, want ErrInvalidInput", err)
	}

	s := f.submission(t, req.ID)
	if _, err := f.engine.DeleteRequirement(ctx, req.ID, auditor); err != nil {
		t.Fatalf("DeleteRequirement: %v", err)
	}
	if _, err := f.engine.GetRequirement(ctx, req.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRequirement after delete err = %v, want ErrNotFound", err)
	}
	if _, err := f.engine.GetSubmission(ctx, s.ID); err != nil {
		t.Errorf("submissions survive a soft delete: %v", err)
	}
	if _, _, err := f.engine.CreateSubmission(ctx, NewSubmission{RequirementID: req.ID, DocumentRef: "d", Actor: auditee}); !errors.Is(err, ErrNotFound) {
		t.Errorf("submission to deleted requirement err = %v, want ErrNotFound", err)
	}
}

func TestEscalate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.requirement(t)
	scheduler := actor.System(actor.SchedulerID)

	r, err := f.engine.Escalate(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "deadline passed", scheduler)
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if r.State != "1" {
		t.Errorf("level = %s, want 1", r.State)
	}
	if _, err := f.engine.Escalate(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "again", scheduler); !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("stale escalate err = %v, want ErrConcurrentModification", err)
	}

	if _, err := f.engine.OverrideEscalation(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "extension granted", auditor); !errors.Is(err, ErrForbidden) {
		t.Errorf("auditor override err = %v, want ErrForbidden", err)
	}
	if _, err := f.engine.OverrideEscalation(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "", admin); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("override without reason err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.engine.OverrideEscalation(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "extension granted", admin); err != nil {
		t.Fatalf("admin override: %v", err)
	}
	got, _ := f.engine.GetRequirement(ctx, req.ID)
	if got.EscalationLevel != 0 {
		t.Errorf("level after override = %d, want 0", got.EscalationLevel)
	}
}

func TestRecordDeadlineWarning_Once(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	req, _, err := f.engine.CreateRequirement(ctx, &requirementdomain.Requirement{AuditID: "audit-1", DocumentType: "sop", Deadline: &deadline}, auditor)
	if err != nil {
		t.Fatalf("CreateRequirement: %v", err)
	}
	scheduler := actor.System(actor.SchedulerID)
	first, err := f.engine.RecordDeadlineWarning(ctx, req.ID, deadline, scheduler)
	if err != nil || first == nil {
		t.Fatalf("first warning = %v, %v", first, err)
	}
	second, err := f.engine.RecordDeadlineWarning(ctx, req.ID, deadline, scheduler)
	if err != nil || second != nil {
		t.Errorf("second warning = %v, %v; want nil, nil", second, err)
	}

	moved := deadline.Add(48 * time.Hour)
	if _, _, err := f.engine.UpdateRequirement(ctx, req.ID, RequirementChange{Deadline: &moved}, auditor); err != nil {
		t.Fatalf("UpdateRequirement: %v", err)
	}
	third, err := f.engine.RecordDeadlineWarning(ctx, req.ID, moved, scheduler)
	if err != nil || third == nil {
		t.Errorf("warning for a new deadline = %v, %v", third, err)
	}
}

func TestReplay_RepairsDriftedPointers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.requirement(t)
	s := f.submission(t, req.ID)
	f.advance(t, s.ID, domain.StageAIValidating, domain.StageAIValidated)
	if _, err := f.engine.Escalate(ctx, ledgerdomain.EntityRequirement, req.ID, 0, "late", actor.System(actor.SchedulerID)); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	drifted, _ := f.submissions.GetSubmissionByID(ctx, s.ID)
	drifted.Stage = domain.StageApproved
	_ = f.submissions.UpdateSubmission(ctx, drifted)
	r, _ := f.requirements.GetRequirementByID(ctx, req.ID)
	r.EscalationLevel = 4
	_ = f.requirements.UpdateRequirement(ctx, r)

	if _, err := f.engine.Replay(ctx, "audit-1", auditor); !errors.Is(err, ErrForbidden) {
		t.Errorf("auditor replay err = %v, want ErrForbidden", err)
	}
	report, err := f.engine.Replay(ctx, "audit-1", admin)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(report.Repaired) != 2 {
		t.Errorf("repaired = %+v, want 2 drifts", report.Repaired)
	}
	got, _ := f.engine.GetSubmission(ctx, s.ID)
	if got.Stage != domain.StageAIValidated {
		t.Errorf("stage after replay = %s, want ai_validated", got.Stage)
	}
	gotReq, _ := f.engine.GetRequirement(ctx, req.ID)
	if gotReq.EscalationLevel != 1 {
		t.Errorf("level after replay = %d, want 1", gotReq.EscalationLevel)
	}

	again, err := f.engine.Replay(ctx, "audit-1", admin)
	if err != nil || len(again.Repaired) != 0 {
		t.Errorf("second replay = %+v, %v; want no repairs", again, err)
	}
}

func TestReplay_RebuildsLostRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.requirement(t)
	deadline := time.Date(2026, 6, 30, 17, 0, 0, 0, time.UTC)
	description := "signed by the CISO"
	if _, _, err := f.engine.UpdateRequirement(ctx, req.ID, RequirementChange{Description: &description, Deadline: &deadline}, auditor); err != nil {
		t.Fatalf("UpdateRequirement: %v", err)
	}
	s := f.submission(t, req.ID)
	if _, err := f.engine.TransitionSubmission(ctx, SubmissionTransition{SubmissionID: s.ID, To: domain.StageAIValidating, Actor: system, DispatchSeq: 3}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := f.engine.UpdateNotes(ctx, s.ID, "waiting on validator", auditor); err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	fd, _, err := f.engine.CreateFinding(ctx, NewFinding{
		SubmissionID: s.ID, Title: "Unsigned policy", Description: "no signature page", Severity: findingdomain.SeverityMajor, Actor: auditor,
	})
	if err != nil {
		t.Fatalf("CreateFinding: %v", err)
	}
	if _, err := f.engine.TransitionFinding(ctx, FindingTransition{FindingID: fd.ID, To: findingdomain.StatusInProgress, Actor: auditor, Reason: "owner assigned"}); err != nil {
		t.Fatalf("TransitionFinding: %v", err)
	}
	if _, err := f.engine.Escalate(ctx, ledgerdomain.EntityFinding, fd.ID, 0, "finding overdue", actor.System(actor.SchedulerID)); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	// A second engine over the same chain starts with empty current-state tables.
	authz, err := engine.NewOPAEvaluator(nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	requirements := requirementrepo.NewMemoryRepository()
	submissions := submissionrepo.NewMemoryRepository()
	findings := findingrepo.NewMemoryRepository()
	rebuilt := NewEngine(requirements, submissions, findings, repository.NewMemoryRequestRepository(), f.ledger, nil, authz)

	report, err := rebuilt.Replay(ctx, "audit-1", admin)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(report.Repaired) != 3 || report.Repaired[0].EntityKind != "requirement" {
		t.Fatalf("repaired = %+v, want requirement, submission and finding rows", report.Repaired)
	}
	for _, d := range report.Repaired {
		if d.Field != "row" {
			t.Errorf("drift %+v, want a rebuilt row", d)
		}
	}

	gotReq, _ := requirements.GetRequirementByID(ctx, req.ID)
	if gotReq == nil || gotReq.Description != description || gotReq.Deadline == nil || !gotReq.Deadline.Equal(deadline) || !gotReq.Mandatory {
		t.Errorf("requirement = %+v", gotReq)
	}
	gotSub, _ := submissions.GetSubmissionByID(ctx, s.ID)
	if gotSub == nil || gotSub.Stage != domain.StageAIValidating || gotSub.AIJobSeq != 3 ||
		gotSub.VerificationNotes != "waiting on validator" || gotSub.SubmitterID != auditee.ID || gotSub.RequirementID != req.ID {
		t.Errorf("submission = %+v", gotSub)
	}
	gotFinding, _ := findings.GetFindingByID(ctx, fd.ID)
	if gotFinding == nil || gotFinding.Status != findingdomain.StatusInProgress || gotFinding.EscalationLevel != 1 ||
		gotFinding.Description != "no signature page" || gotFinding.SubmissionID != s.ID {
		t.Errorf("finding = %+v", gotFinding)
	}

	again, err := rebuilt.Replay(ctx, "audit-1", admin)
	if err != nil || len(again.Repaired) != 0 {
		t.Errorf("second replay = %+v, %v; want no repairs", again, err)
	}
}

func TestResumeLedger(t *testing.T) {
	ctx := context.Background()
	blocks := ledgerrepo.NewMemoryRepository()
	authz, err := engine.NewOPAEvaluator(nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	l := ledger.New(blocks, nil)
	e := NewEngine(requirementrepo.NewMemoryRepository(), submissionrepo.NewMemoryRepository(), findingrepo.NewMemoryRepository(),
		repository.NewMemoryRequestRepository(), l, nil, authz)
	if err := blocks.Halt(ctx, "audit-1", "operator drill", time.Now()); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	if _, err := e.ResumeLedger(ctx, "audit-1", auditor); !errors.Is(err, ErrForbidden) {
		t.Errorf("auditor resume err = %v, want ErrForbidden", err)
	}
	v, err := e.ResumeLedger(ctx, "audit-1", admin)
	if err != nil {
		t.Fatalf("ResumeLedger: %v", err)
	}
	if !v.Valid {
		t.Errorf("verification = %+v", v)
	}
	if _, halted, _ := l.Halted(ctx, "audit-1"); halted {
		t.Error("chain still halted after resume")
	}
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{ErrNotFound, KindNotFound},
		{ErrLedgerIntegrity, KindLedgerIntegrity},
		{ErrActiveSubmission, KindConflict},
		{invalidInput("x"), KindInvalidInput},
		{errors.New("boom"), KindInternal},
		{stateError(KindForbidden, "finding", "f", "open", nil, ErrForbidden), KindForbidden},
	}
	for _, tc := range testCases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
