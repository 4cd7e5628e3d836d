package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"auditflow/backend/internal/policy/repository"
)

const allowQuery = "data.auditflow.transitions.allow"

// Default Rego policy: reviewers decide, automation validates, assignees work their findings.
const defaultRegoPolicy = `package auditflow.transitions

default allow := false

reviewer if input.actor.role in {"auditor", "admin"}

automated if input.actor.type in {"ai", "system"}

transition if input.action == "transition"

allow if {
	transition
	input.entity.kind == "submission"
	automated
	input.to in {"ai_validating", "ai_validated", "under_review"}
}

allow if {
	transition
	input.entity.kind == "submission"
	input.actor.type == "ai"
	input.from == "under_review"
	input.to == "approved"
}

allow if {
	transition
	input.entity.kind == "submission"
	input.actor.type == "user"
	reviewer
}

allow if {
	transition
	input.entity.kind == "submission"
	input.actor.type == "user"
	input.actor.id == input.entity.owner_id
	input.to == "ai_validating"
}

allow if {
	transition
	input.entity.kind == "finding"
	input.actor.type == "user"
	reviewer
}

allow if {
	transition
	input.entity.kind == "finding"
	input.actor.type == "user"
	input.actor.id == input.entity.assignee_id
	input.to in {"in_progress", "resolved"}
}

allow if {
	transition
	input.entity.kind == "finding"
	automated
}

allow if {
	input.action in {"requirement_write", "verification_notes", "finding_create"}
	input.actor.type == "user"
	reviewer
}

allow if {
	input.action in {"finding_create", "escalate"}
	automated
}

allow if {
	input.action == "escalate"
	input.actor.type == "user"
	reviewer
}

allow if {
	input.action in {"escalation_override", "ledger_admin", "policy_admin"}
	input.actor.type == "user"
	input.actor.role == "admin"
}
`

// OPAEvaluator authorizes workflow mutations using OPA Rego.
type OPAEvaluator struct {
	policyRepo repository.Repository
	fallback   rego.PreparedEvalQuery
}

// NewOPAEvaluator returns an OPA-based authorizer. policyRepo may be nil, in which case only
// the default policy is used. The default policy is compiled once here.
func NewOPAEvaluator(policyRepo repository.Repository) (*OPAEvaluator, error) {
	compiler, err := compile([]string{defaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile default policy: %w", err)
	}
	prepared, err := rego.New(rego.Query(allowQuery), rego.Compiler(compiler)).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("prepare default policy: %w", err)
	}
	return &OPAEvaluator{policyRepo: policyRepo, fallback: prepared}, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := compile([]string{defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Input(buildInput(Input{Action: ActionTransition})),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// Validate reports whether rules compile together with the allow query.
func (e *OPAEvaluator) Validate(ctx context.Context, rules string) error {
	compiler, err := compile([]string{rules})
	if err != nil {
		return err
	}
	_, err = rego.New(rego.Query(allowQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	return err
}

// Allow evaluates the audit's enabled policies, or the default policy when the audit has none.
// An audit policy that fails to compile or evaluate is logged and the default policy decides.
func (e *OPAEvaluator) Allow(ctx context.Context, in Input) (bool, error) {
	input := buildInput(in)

	var policies []string
	if e.policyRepo != nil && in.AuditID != "" {
		enabled, err := e.policyRepo.GetEnabledPoliciesByAudit(ctx, in.AuditID)
		if err != nil {
			log.Printf("policy: failed to load policies for audit %s: %v", in.AuditID, err)
		}
		for _, p := range enabled {
			if p.Enabled && p.Rules != "" {
				policies = append(policies, p.Rules)
			}
		}
	}

	if len(policies) > 0 {
		allowed, err := evaluatePolicies(ctx, policies, input)
		if err == nil {
			return allowed, nil
		}
		log.Printf("policy: audit %s policy evaluation failed: %v, using default policy", in.AuditID, err)
	}

	rs, err := e.fallback.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval default policy: %w", err)
	}
	return allowed(rs), nil
}

func compile(policies []string) (*ast.Compiler, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}
	return ast.CompileModules(modules)
}

func evaluatePolicies(ctx context.Context, policies []string, input map[string]interface{}) (bool, error) {
	compiler, err := compile(policies)
	if err != nil {
		return false, fmt.Errorf("compile policies: %w", err)
	}
	rs, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return false, err
	}
	return allowed(rs), nil
}

func allowed(rs rego.ResultSet) bool {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	return ok && v
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"action": in.Action,
		"actor": map[string]interface{}{
			"id":   in.Actor.ID,
			"type": string(in.Actor.Type),
			"role": string(in.Actor.Role),
		},
		"audit_id": in.AuditID,
		"entity": map[string]interface{}{
			"kind":        in.EntityKind,
			"id":          in.EntityID,
			"owner_id":    in.OwnerID,
			"assignee_id": in.AssigneeID,
		},
		"from": in.From,
		"to":   in.To,
	}
}
