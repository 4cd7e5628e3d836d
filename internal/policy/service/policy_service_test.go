package service

import (
	"context"
	"errors"
	"testing"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/policy/engine"
	"auditflow/backend/internal/policy/repository"
)

var (
	admin   = actor.Actor{ID: "admin-1", Type: actor.TypeUser, Role: actor.RoleAdmin}
	auditor = actor.Actor{ID: "auditor-1", Type: actor.TypeUser, Role: actor.RoleAuditor}
)

// lockout denies everything, including to admins.
const lockout = `package auditflow.transitions

default allow := false
`

func newService(t *testing.T) (*PolicyService, *engine.OPAEvaluator) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	opa, err := engine.NewOPAEvaluator(repo)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return NewPolicyService(repo, opa, opa, nil), opa
}

func TestPut_ReplacesEnabledPolicy(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "audit-1", lockout, admin)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := s.Put(ctx, "audit-1", lockout, admin)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	all, err := s.List(ctx, "audit-1", admin)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID || all[0].Enabled || !all[1].Enabled || all[1].ID != second.ID {
		t.Errorf("policies = %+v", all)
	}
	got, err := s.Get(ctx, second.ID, admin)
	if err != nil || got.Rules != lockout {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := s.Get(ctx, "missing", admin); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}
}

func TestPut_Rejects(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	testCases := []struct {
		name    string
		auditID string
		rules   string
		actor   actor.Actor
		want    error
	}{
		{"auditor", "audit-1", lockout, auditor, ErrForbidden},
		{"no actor", "audit-1", lockout, actor.Actor{}, ErrForbidden},
		{"empty rules", "audit-1", "", admin, ErrInvalidPolicy},
		{"no audit", " ", lockout, admin, ErrInvalidPolicy},
		{"does not compile", "audit-1", "package auditflow.transitions\nallow if {", admin, ErrInvalidPolicy},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Put(ctx, tc.auditID, tc.rules, tc.actor); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAuditPolicyCannotLockOutAdmins(t *testing.T) {
	s, opa := newService(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "audit-1", lockout, admin); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := opa.Allow(ctx, engine.Input{Action: engine.ActionLedgerAdmin, Actor: admin, AuditID: "audit-1"})
	if err != nil || ok {
		t.Fatalf("audit policy not in force: allow=%v err=%v", ok, err)
	}

	if err := s.Disable(ctx, "audit-1", admin); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	ok, _ = opa.Allow(ctx, engine.Input{Action: engine.ActionLedgerAdmin, Actor: admin, AuditID: "audit-1"})
	if !ok {
		t.Error("default policy should apply again after Disable")
	}
}
