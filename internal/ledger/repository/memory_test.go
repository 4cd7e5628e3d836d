package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"auditflow/backend/internal/ledger/domain"
)

func block(audit string, n int64, entity string) *domain.Block {
	return &domain.Block{
		AuditID:   audit,
		Number:    n,
		EntityID:  entity,
		Payload:   []byte(`{}`),
		CreatedAt: time.Unix(n, 0).UTC(),
	}
}

func TestMemoryRepository_InsertRequiresNextNumber(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	if err := r.Insert(ctx, block("a", 1, "e")); err != nil {
		t.Fatalf("Insert 1: %v", err)
	}
	if err := r.Insert(ctx, block("a", 1, "e")); !errors.Is(err, ErrDuplicateBlock) {
		t.Errorf("duplicate Insert err = %v, want ErrDuplicateBlock", err)
	}
	if err := r.Insert(ctx, block("a", 3, "e")); !errors.Is(err, ErrDuplicateBlock) {
		t.Errorf("gap Insert err = %v, want ErrDuplicateBlock", err)
	}
	last, err := r.Last(ctx, "a")
	if err != nil || last == nil || last.Number != 1 {
		t.Fatalf("Last = %+v, %v; want block 1", last, err)
	}
}

func TestMemoryRepository_ListReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if err := r.Insert(ctx, block("a", i, "e")); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	list, err := r.List(ctx, "a", domain.Query{AfterBlock: 1, Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Number != 2 {
		t.Fatalf("List = %d blocks, want block 2 only", len(list))
	}
	list[0].Payload[0] = 'X'
	again, _ := r.List(ctx, "a", domain.Query{})
	if string(again[1].Payload) != `{}` {
		t.Error("mutating a listed block must not change the stored chain")
	}
}

func TestMemoryRepository_ListByEntity(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.Insert(ctx, block("a", 1, "x"))
	_ = r.Insert(ctx, block("b", 1, "x"))
	_ = r.Insert(ctx, block("a", 2, "y"))
	got, err := r.ListByEntity(ctx, "x")
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListByEntity = %d blocks, want 2", len(got))
	}
}

func TestMemoryRepository_Halts(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	if _, halted, _ := r.HaltReason(ctx, "a"); halted {
		t.Fatal("new audit should not be halted")
	}
	_ = r.Halt(ctx, "a", "first", time.Now())
	_ = r.Halt(ctx, "a", "second", time.Now())
	reason, halted, _ := r.HaltReason(ctx, "a")
	if !halted || reason != "first" {
		t.Errorf("HaltReason = %q, %v; want first, true", reason, halted)
	}
	_ = r.ClearHalt(ctx, "a")
	if _, halted, _ := r.HaltReason(ctx, "a"); halted {
		t.Error("ClearHalt should lift the halt")
	}
}
