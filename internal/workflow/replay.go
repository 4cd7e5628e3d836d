package workflow

import (
	"context"
	"fmt"
	"log"
	"sort"

	"auditflow/backend/internal/actor"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/policy/engine"
)

// rebuildOrder lets referenced rows be recreated before the rows that point at them.
var rebuildOrder = map[ledgerdomain.EntityKind]int{
	ledgerdomain.EntityRequirement: 0,
	ledgerdomain.EntitySubmission:  1,
	ledgerdomain.EntityFinding:     2,
}

// Drift is one current-state pointer that disagreed with the ledger and was rewritten.
type Drift struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Field      string `json:"field"`
	Stored     string `json:"stored"`
	Ledger     string `json:"ledger"`
}

// ReplayReport summarizes a pointer rebuild.
type ReplayReport struct {
	AuditID  string  `json:"audit_id"`
	Blocks   int64   `json:"blocks"`
	Entities int     `json:"entities"`
	Repaired []Drift `json:"repaired"`
}

// ResumeLedger lifts an integrity halt on the audit chain once it verifies end to end.
func (e *Engine) ResumeLedger(ctx context.Context, auditID string, a actor.Actor) (*ledgerdomain.Verification, error) {
	if err := e.authorize(ctx, engine.Input{Action: engine.ActionLedgerAdmin, Actor: a, AuditID: auditID}); err != nil {
		return nil, err
	}
	return e.ledger.Resume(ctx, auditID)
}

// Replay recomputes submission stages, finding statuses and escalation levels of an audit from
// its chain and rewrites pointers that drifted. Rows missing from the current-state tables are
// rebuilt from their blocks. Pointers are caches, so repairs append nothing. The chain must
// verify first.
func (e *Engine) Replay(ctx context.Context, auditID string, a actor.Actor) (*ReplayReport, error) {
	if err := e.authorize(ctx, engine.Input{Action: engine.ActionLedgerAdmin, Actor: a, AuditID: auditID}); err != nil {
		return nil, err
	}
	v, err := e.ledger.VerifyChain(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, fmt.Errorf("%w: audit %s diverges at block %d: %s", ErrLedgerIntegrity, auditID, *v.DivergentBlock, v.Reason)
	}
	blocks, err := e.ledger.Blocks(ctx, auditID, ledgerdomain.Query{})
	if err != nil {
		return nil, err
	}

	kinds := make(map[string]ledgerdomain.EntityKind)
	for _, b := range blocks {
		kinds[b.EntityID] = b.EntityKind
	}
	ids := make([]string, 0, len(kinds))
	for id := range kinds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if oi, oj := rebuildOrder[kinds[ids[i]]], rebuildOrder[kinds[ids[j]]]; oi != oj {
			return oi < oj
		}
		return ids[i] < ids[j]
	})

	report := &ReplayReport{AuditID: auditID, Blocks: v.Length, Entities: len(ids), Repaired: []Drift{}}
	for _, id := range ids {
		drifts, err := e.repairEntity(ctx, auditID, kinds[id], id)
		if err != nil {
			return report, fmt.Errorf("replay %s %s: %w", kinds[id], id, err)
		}
		report.Repaired = append(report.Repaired, drifts...)
	}
	if len(report.Repaired) > 0 {
		log.Printf("workflow: replay of audit %s repaired %d pointers", auditID, len(report.Repaired))
	}
	return report, nil
}

// repairEntity rebuilds one entity under its lock from its own history, so blocks appended
// after the audit snapshot are taken into account. A missing row is recreated from the chain.
func (e *Engine) repairEntity(ctx context.Context, auditID string, kind ledgerdomain.EntityKind, id string) ([]Drift, error) {
	var drifts []Drift
	drift := func(field string, stored, derived any) {
		drifts = append(drifts, Drift{string(kind), id, field, fmt.Sprint(stored), fmt.Sprint(derived)})
	}
	err := e.mutate(ctx, id, func(ctx context.Context) (*ledgerdomain.Block, error) {
		history, err := e.ledger.EntityHistory(ctx, id)
		if err != nil {
			return nil, err
		}
		chain := auditHistory(auditID, history)
		switch kind {
		case ledgerdomain.EntitySubmission:
			want, err := rebuildSubmission(chain)
			if err != nil || want == nil {
				return nil, err
			}
			s, err := e.submissions.GetSubmissionForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			if s == nil {
				drift("row", "missing", want.Stage)
				return nil, e.submissions.CreateSubmission(ctx, want)
			}
			dirty := false
			if s.Stage != want.Stage {
				drift("stage", s.Stage, want.Stage)
				s.Stage, dirty = want.Stage, true
			}
			if s.AIJobSeq != want.AIJobSeq {
				drift("ai_job_seq", s.AIJobSeq, want.AIJobSeq)
				s.AIJobSeq, dirty = want.AIJobSeq, true
			}
			if dirty {
				s.UpdatedAt = e.timestamp()
				return nil, e.submissions.UpdateSubmission(ctx, s)
			}
		case ledgerdomain.EntityFinding:
			want, err := rebuildFinding(chain)
			if err != nil || want == nil {
				return nil, err
			}
			f, err := e.findings.GetFindingForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			if f == nil {
				drift("row", "missing", want.Status)
				return nil, e.findings.CreateFinding(ctx, want)
			}
			dirty := false
			if f.Status != want.Status {
				drift("status", f.Status, want.Status)
				f.Status, dirty = want.Status, true
			}
			if f.EscalationLevel != want.EscalationLevel {
				drift("escalation_level", f.EscalationLevel, want.EscalationLevel)
				f.EscalationLevel, dirty = want.EscalationLevel, true
			}
			if dirty {
				f.UpdatedAt = e.timestamp()
				return nil, e.findings.UpdateFinding(ctx, f)
			}
		case ledgerdomain.EntityRequirement:
			want, err := rebuildRequirement(chain)
			if err != nil || want == nil {
				return nil, err
			}
			r, err := e.requirements.GetRequirementForUpdate(ctx, id)
			if err != nil {
				return nil, err
			}
			if r == nil {
				drift("row", "missing", "active")
				return nil, e.requirements.CreateRequirement(ctx, want)
			}
			if r.EscalationLevel != want.EscalationLevel {
				drift("escalation_level", r.EscalationLevel, want.EscalationLevel)
				r.EscalationLevel = want.EscalationLevel
				r.UpdatedAt = e.timestamp()
				return nil, e.requirements.UpdateRequirement(ctx, r)
			}
		}
		return nil, nil
	})
	return drifts, err
}
