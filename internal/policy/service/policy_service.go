// Package service manages audit-specific transition policies.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/db"
	"auditflow/backend/internal/policy/domain"
	"auditflow/backend/internal/policy/engine"
	"auditflow/backend/internal/policy/repository"
)

var (
	ErrForbidden     = errors.New("policy administration requires the admin role")
	ErrInvalidPolicy = errors.New("invalid policy")
	ErrNotFound      = errors.New("policy not found")
)

// Validator compiles candidate rules.
type Validator interface {
	Validate(ctx context.Context, rules string) error
}

// PolicyService replaces, lists and disables the policy of an audit.
type PolicyService struct {
	repo      repository.Repository
	validator Validator
	authz     engine.Authorizer
	tx        db.TxRunner
	now       func() time.Time
}

// NewPolicyService returns a PolicyService. tx may be nil for the in-memory store.
func NewPolicyService(repo repository.Repository, validator Validator, authz engine.Authorizer, tx db.TxRunner) *PolicyService {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &PolicyService{repo: repo, validator: validator, authz: authz, tx: tx, now: time.Now}
}

// authorize asks the default policy only: the input carries no audit id, so an audit policy
// can never lock administrators out of replacing it.
func (s *PolicyService) authorize(ctx context.Context, a actor.Actor) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	ok, err := s.authz.Allow(ctx, engine.Input{Action: engine.ActionPolicyAdmin, Actor: a})
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Put validates rules and makes them the only enabled policy of the audit.
func (s *PolicyService) Put(ctx context.Context, auditID, rules string, a actor.Actor) (*domain.Policy, error) {
	if err := s.authorize(ctx, a); err != nil {
		return nil, err
	}
	p := &domain.Policy{
		ID:        uuid.New().String(),
		AuditID:   strings.TrimSpace(auditID),
		Rules:     rules,
		Enabled:   true,
		CreatedAt: s.now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := s.validator.Validate(ctx, rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DisableByAudit(ctx, p.AuditID); err != nil {
			return err
		}
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("policy: audit %s policy replaced by %s (%s)", p.AuditID, a.ID, p.ID)
	return p, nil
}

// Get returns one policy by id.
func (s *PolicyService) Get(ctx context.Context, id string, a actor.Actor) (*domain.Policy, error) {
	if err := s.authorize(ctx, a); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// List returns every policy the audit ever had, enabled or not, in creation order.
func (s *PolicyService) List(ctx context.Context, auditID string, a actor.Actor) ([]*domain.Policy, error) {
	if err := s.authorize(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.ListByAudit(ctx, auditID)
}

// Disable turns the audit's policies off so the default policy applies again.
func (s *PolicyService) Disable(ctx context.Context, auditID string, a actor.Actor) error {
	if err := s.authorize(ctx, a); err != nil {
		return err
	}
	if err := s.repo.DisableByAudit(ctx, auditID); err != nil {
		return err
	}
	log.Printf("policy: audit %s reverted to the default policy by %s", auditID, a.ID)
	return nil
}
