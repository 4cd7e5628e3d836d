// Package escalation raises escalation levels of overdue requirements and findings and records
// deadline warnings. It never changes workflow state; every change goes through the workflow
// engine and is therefore one ledger block.
package escalation

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auditflow/backend/internal/actor"
	findingrepo "auditflow/backend/internal/finding/repository"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	requirementdomain "auditflow/backend/internal/requirement/domain"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	"auditflow/backend/internal/workflow"
)

// Config controls how fast levels rise.
type Config struct {
	// Interval is how long past the deadline each further level waits.
	Interval time.Duration
	// MaxLevel caps automatic escalation.
	MaxLevel int
	// WarningWindow is how far ahead of a deadline the warning goes out.
	WarningWindow time.Duration
}

// Report summarizes one tick.
type Report struct {
	Warned    int `json:"warned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Scheduler evaluates deadlines on each Tick.
type Scheduler struct {
	engine       *workflow.Engine
	requirements requirementrepo.Repository
	findings     findingrepo.Repository
	cfg          Config
	actor        actor.Actor

	counter metric.Int64Counter
}

// New returns a scheduler. Zero config values fall back to 24h steps, level 5 and a 48h window.
func New(engine *workflow.Engine, requirements requirementrepo.Repository, findings findingrepo.Repository, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 5
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = 48 * time.Hour
	}
	counter, _ := otel.Meter("auditflow/escalation").Int64Counter("escalation.actions",
		metric.WithDescription("Escalations and deadline warnings by entity and outcome"))
	return &Scheduler{
		engine:       engine,
		requirements: requirements,
		findings:     findings,
		cfg:          cfg,
		actor:        actor.System(actor.SchedulerID),
		counter:      counter,
	}
}

// TargetLevel is the level an entity overdue since deadline should have reached at now:
// level 1 at the deadline, one more per interval, capped at max.
func TargetLevel(deadline, now time.Time, interval time.Duration, max int) int {
	if !now.After(deadline) {
		return 0
	}
	level := 1 + int(now.Sub(deadline)/interval)
	if level > max {
		return max
	}
	return level
}

// Tick evaluates every deadline-bearing requirement and finding at now. Each entity moves at
// most one level per tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*Report, error) {
	rep := &Report{}
	due, err := s.requirements.ListDueRequirements(ctx, now.Add(s.cfg.WarningWindow))
	if err != nil {
		return nil, err
	}
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		s.requirement(ctx, now, r, rep)
	}

	overdue, err := s.findings.ListOverdueFindings(ctx, now)
	if err != nil {
		return rep, err
	}
	for _, f := range overdue {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !f.Overdue(now) {
			continue
		}
		target := TargetLevel(*f.DueDate, now, s.cfg.Interval, s.cfg.MaxLevel)
		if f.EscalationLevel >= target {
			continue
		}
		s.escalate(ctx, ledgerdomain.EntityFinding, f.ID, f.EscalationLevel, "finding overdue", rep)
	}
	return rep, nil
}

func (s *Scheduler) requirement(ctx context.Context, now time.Time, r *requirementdomain.Requirement, rep *Report) {
	satisfied, err := s.engine.RequirementSatisfied(ctx, r.ID)
	if err != nil {
		log.Printf("escalation: requirement %s: %v", r.ID, err)
		rep.Failed++
		return
	}
	if satisfied {
		return
	}
	deadline := *r.Deadline

	if !r.Overdue(now) {
		if r.WarnedDeadline != nil && r.WarnedDeadline.Equal(deadline) {
			return
		}
		receipt, err := s.engine.RecordDeadlineWarning(ctx, r.ID, deadline, s.actor)
		switch {
		case err != nil:
			log.Printf("escalation: warn requirement %s: %v", r.ID, err)
			rep.Failed++
			s.count(ctx, "requirement", "failed")
		case receipt != nil:
			rep.Warned++
			s.count(ctx, "requirement", "warned")
		}
		return
	}

	if !r.AutoEscalate {
		return
	}
	target := TargetLevel(deadline, now, s.cfg.Interval, s.cfg.MaxLevel)
	if r.EscalationLevel >= target {
		return
	}
	s.escalate(ctx, ledgerdomain.EntityRequirement, r.ID, r.EscalationLevel, "deadline passed", rep)
}

func (s *Scheduler) escalate(ctx context.Context, kind ledgerdomain.EntityKind, id string, level int, reason string, rep *Report) {
	_, err := s.engine.Escalate(ctx, kind, id, level, reason, s.actor)
	switch {
	case err == nil:
		rep.Escalated++
		s.count(ctx, string(kind), "escalated")
	case errors.Is(err, workflow.ErrConcurrentModification):
		// An override or a concurrent tick changed the level; the next tick re-evaluates.
		rep.Skipped++
		s.count(ctx, string(kind), "skipped")
	default:
		log.Printf("escalation: escalate %s %s: %v", kind, id, err)
		rep.Failed++
		s.count(ctx, string(kind), "failed")
	}
}

func (s *Scheduler) count(ctx context.Context, entity, outcome string) {
	if s.counter != nil {
		s.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity), attribute.String("outcome", outcome)))
	}
}
