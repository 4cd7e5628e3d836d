package repository

import (
	"context"
	"testing"
	"time"

	"auditflow/backend/internal/finding/domain"
)

func TestMemoryRepository_ListOverdueFindings(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "open", Status: domain.StatusOpen, DueDate: &past})
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "working", Status: domain.StatusInProgress, DueDate: &past})
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "resolved", Status: domain.StatusResolved, DueDate: &past})
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "no-due", Status: domain.StatusOpen})

	got, err := r.ListOverdueFindings(ctx, now)
	if err != nil {
		t.Fatalf("ListOverdueFindings: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListOverdueFindings = %d findings, want 2", len(got))
	}
}

func TestMemoryRepository_ListBySubmission(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "f1", AuditID: "a", SubmissionID: "s1"})
	_ = r.CreateFinding(ctx, &domain.Finding{ID: "f2", AuditID: "a", MeetingID: "m1"})

	got, _ := r.ListFindingsBySubmission(ctx, "s1")
	if len(got) != 1 || got[0].ID != "f1" {
		t.Errorf("ListFindingsBySubmission = %d findings, want f1", len(got))
	}
	all, _ := r.ListFindingsByAudit(ctx, "a")
	if len(all) != 2 {
		t.Errorf("ListFindingsByAudit = %d findings, want 2", len(all))
	}
}
