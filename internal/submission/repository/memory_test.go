package repository

import (
	"context"
	"testing"
	"time"

	"auditflow/backend/internal/submission/domain"
)

func TestMemoryRepository_ListByRequirementOrdersRounds(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.CreateSubmission(ctx, &domain.Submission{ID: "s2", RequirementID: "req", RevisionRound: 2})
	_ = r.CreateSubmission(ctx, &domain.Submission{ID: "s1", RequirementID: "req", RevisionRound: 1})
	_ = r.CreateSubmission(ctx, &domain.Submission{ID: "other", RequirementID: "req-2", RevisionRound: 1})

	list, err := r.ListSubmissionsByRequirement(ctx, "req")
	if err != nil {
		t.Fatalf("ListSubmissionsByRequirement: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s1" || list[1].ID != "s2" {
		t.Errorf("ListSubmissionsByRequirement = %v, want [s1 s2]", ids(list))
	}
}

func TestMemoryRepository_UpdateKeepsCopy(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	score := 5.0
	s := &domain.Submission{ID: "s1", AuditID: "a", Stage: domain.StageSubmitted, AIScore: &score, CreatedAt: time.Now()}
	_ = r.CreateSubmission(ctx, s)
	score = 9
	got, _ := r.GetSubmissionByID(ctx, "s1")
	if *got.AIScore != 5 {
		t.Errorf("AIScore = %v, want 5 (stored copy)", *got.AIScore)
	}
	got.Stage = domain.StageAIValidating
	_ = r.UpdateSubmission(ctx, got)
	again, _ := r.GetSubmissionByID(ctx, "s1")
	if again.Stage != domain.StageAIValidating {
		t.Errorf("Stage = %s, want ai_validating", again.Stage)
	}
	_ = r.UpdateSubmission(ctx, &domain.Submission{ID: "missing"})
	if m, _ := r.GetSubmissionByID(ctx, "missing"); m != nil {
		t.Error("UpdateSubmission must not create rows")
	}
}

func ids(list []*domain.Submission) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
