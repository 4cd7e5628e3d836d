package repository

import (
	"context"
	"testing"
	"time"

	"auditflow/backend/internal/requirement/domain"
)

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "r1", AuditID: "a", DocumentType: "policy"})

	got, err := r.GetRequirementByID(ctx, "r1")
	if err != nil || got == nil {
		t.Fatalf("GetRequirementByID = %v, %v", got, err)
	}
	got.DocumentType = "changed"
	again, _ := r.GetRequirementByID(ctx, "r1")
	if again.DocumentType != "policy" {
		t.Error("mutating a returned requirement must not change the store")
	}
	missing, err := r.GetRequirementByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing requirement = %v, %v; want nil, nil", missing, err)
	}
}

func TestMemoryRepository_ListSkipsDeleted(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "r1", AuditID: "a", CreatedAt: now})
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "r2", AuditID: "a", CreatedAt: now.Add(time.Second), DeletedAt: &now})
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "r3", AuditID: "b", CreatedAt: now})

	list, _ := r.ListRequirementsByAudit(ctx, "a")
	if len(list) != 1 || list[0].ID != "r1" {
		t.Errorf("ListRequirementsByAudit = %d items, want only r1", len(list))
	}
}

func TestMemoryRepository_ListDue(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "due", Deadline: &past})
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "later", Deadline: &future})
	_ = r.CreateRequirement(ctx, &domain.Requirement{ID: "none"})

	due, _ := r.ListDueRequirements(ctx, now)
	if len(due) != 1 || due[0].ID != "due" {
		t.Errorf("ListDueRequirements(now) = %d items, want due only", len(due))
	}
	due, _ = r.ListDueRequirements(ctx, now.Add(2*time.Hour))
	if len(due) != 2 {
		t.Errorf("ListDueRequirements(now+2h) = %d items, want 2", len(due))
	}
}
