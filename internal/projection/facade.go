// Package projection serves the read side: timelines, the verification chain, dashboards,
// entity history and notifications. Reads never take workflow locks. When a backing store
// fails, the last successful answer for the same query is returned and flagged stale.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	findingdomain "auditflow/backend/internal/finding/domain"
	findingrepo "auditflow/backend/internal/finding/repository"
	"auditflow/backend/internal/ledger"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/notification"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	submissiondomain "auditflow/backend/internal/submission/domain"
	submissionrepo "auditflow/backend/internal/submission/repository"
)

const (
	DefaultTimelineLimit = 100
	MaxTimelineLimit     = 1000
)

// ErrInvalidCategory is returned for an unknown timeline category.
var ErrInvalidCategory = errors.New("category must be requirement, submission, finding or escalation")

// Meta tells the caller whether the answer is fresh.
type Meta struct {
	Stale bool      `json:"stale"`
	AsOf  time.Time `json:"as_of"`
}

// Entry is one ledger block as shown on a timeline.
type Entry struct {
	BlockNumber int64           `json:"block_number"`
	Hash        string          `json:"hash"`
	PrevHash    string          `json:"prev_hash"`
	Category    string          `json:"category"`
	Action      string          `json:"action"`
	Actor       string          `json:"actor"`
	ActorType   string          `json:"actor_type"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Timeline is a newest-first slice of an audit chain.
type Timeline struct {
	Meta
	AuditID  string  `json:"audit_id"`
	Category string  `json:"category,omitempty"`
	Entries  []Entry `json:"entries"`
}

// Chain is the full verification chain of an audit in block order.
type Chain struct {
	Meta
	AuditID    string  `json:"audit_id"`
	Length     int64   `json:"length"`
	HeadHash   string  `json:"head_hash"`
	Halted     bool    `json:"halted"`
	HaltReason string  `json:"halt_reason,omitempty"`
	Blocks     []Entry `json:"blocks"`
}

// History is every block recorded for one entity, oldest first.
type History struct {
	Meta
	EntityID string  `json:"entity_id"`
	Entries  []Entry `json:"entries"`
}

// Dashboard aggregates the current state of an audit.
type Dashboard struct {
	Meta
	AuditID             string         `json:"audit_id"`
	Requirements        int            `json:"requirements"`
	OverdueRequirements int            `json:"overdue_requirements"`
	SubmissionsByStage  map[string]int `json:"submissions_by_stage"`
	FindingsByStatus    map[string]int `json:"findings_by_status"`
	FindingsBySeverity  map[string]int `json:"findings_by_severity"`
	OverdueFindings     int            `json:"overdue_findings"`
	MaxEscalationLevel  int            `json:"max_escalation_level"`
	ChainLength         int64          `json:"chain_length"`
	HeadHash            string         `json:"head_hash"`
	Halted              bool           `json:"halted"`
}

// Facade answers read queries.
type Facade struct {
	ledger       *ledger.Ledger
	requirements requirementrepo.Repository
	submissions  submissionrepo.Repository
	findings     findingrepo.Repository
	inbox        *notification.Inbox
	cache        *lru.Cache[string, any]
	now          func() time.Time
}

// New returns a facade keeping up to cacheSize last-known-good answers.
func New(l *ledger.Ledger, requirements requirementrepo.Repository, submissions submissionrepo.Repository,
	findings findingrepo.Repository, inbox *notification.Inbox, cacheSize int) (*Facade, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Facade{
		ledger:       l,
		requirements: requirements,
		submissions:  submissions,
		findings:     findings,
		inbox:        inbox,
		cache:        cache,
		now:          time.Now,
	}, nil
}

// lastKnownGood runs load and remembers its answer under key. If load fails and an earlier
// answer exists, that answer is returned with its Meta marked stale.
func lastKnownGood[T any](f *Facade, key string, load func() (*T, error), meta func(*T) *Meta) (*T, error) {
	v, err := load()
	if err == nil {
		meta(v).AsOf = f.now().UTC()
		f.cache.Add(key, *v)
		return v, nil
	}
	cached, ok := f.cache.Get(key)
	if !ok {
		return nil, err
	}
	prev, ok := cached.(T)
	if !ok {
		return nil, err
	}
	log.Printf("projection: %s served from last known good: %v", key, err)
	meta(&prev).Stale = true
	return &prev, nil
}

// Timeline returns up to limit blocks of the audit, newest first, optionally of one category.
func (f *Facade) Timeline(ctx context.Context, auditID, category string, limit int) (*Timeline, error) {
	switch category {
	case "", ledgerdomain.CategoryRequirement, ledgerdomain.CategorySubmission, ledgerdomain.CategoryFinding, ledgerdomain.CategoryEscalation:
	default:
		return nil, ErrInvalidCategory
	}
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	if limit > MaxTimelineLimit {
		limit = MaxTimelineLimit
	}
	key := fmt.Sprintf("timeline:%s:%s:%d", auditID, category, limit)
	return lastKnownGood(f, key, func() (*Timeline, error) {
		blocks, err := f.ledger.Blocks(ctx, auditID, ledgerdomain.Query{})
		if err != nil {
			return nil, err
		}
		t := &Timeline{AuditID: auditID, Category: category, Entries: []Entry{}}
		for i := len(blocks) - 1; i >= 0 && len(t.Entries) < limit; i-- {
			if category != "" && blocks[i].Category() != category {
				continue
			}
			t.Entries = append(t.Entries, toEntry(blocks[i]))
		}
		return t, nil
	}, func(t *Timeline) *Meta { return &t.Meta })
}

// Chain returns the whole chain of the audit in block order.
func (f *Facade) Chain(ctx context.Context, auditID string) (*Chain, error) {
	return lastKnownGood(f, "chain:"+auditID, func() (*Chain, error) {
		blocks, err := f.ledger.Blocks(ctx, auditID, ledgerdomain.Query{})
		if err != nil {
			return nil, err
		}
		reason, halted, err := f.ledger.Halted(ctx, auditID)
		if err != nil {
			return nil, err
		}
		c := &Chain{AuditID: auditID, Length: int64(len(blocks)), HeadHash: ledgerdomain.GenesisHash,
			Halted: halted, HaltReason: reason, Blocks: make([]Entry, 0, len(blocks))}
		for _, b := range blocks {
			c.Blocks = append(c.Blocks, toEntry(b))
		}
		if len(blocks) > 0 {
			c.HeadHash = blocks[len(blocks)-1].Hash
		}
		return c, nil
	}, func(c *Chain) *Meta { return &c.Meta })
}

// Verify recomputes the chain. It is never served from cache.
func (f *Facade) Verify(ctx context.Context, auditID string) (*ledgerdomain.Verification, error) {
	return f.ledger.VerifyChain(ctx, auditID)
}

// EntityHistory returns the blocks of one entity, oldest first.
func (f *Facade) EntityHistory(ctx context.Context, entityID string) (*History, error) {
	return lastKnownGood(f, "history:"+entityID, func() (*History, error) {
		blocks, err := f.ledger.EntityHistory(ctx, entityID)
		if err != nil {
			return nil, err
		}
		h := &History{EntityID: entityID, Entries: make([]Entry, 0, len(blocks))}
		for _, b := range blocks {
			h.Entries = append(h.Entries, toEntry(b))
		}
		return h, nil
	}, func(h *History) *Meta { return &h.Meta })
}

// Dashboard counts the current state of an audit.
func (f *Facade) Dashboard(ctx context.Context, auditID string) (*Dashboard, error) {
	return lastKnownGood(f, "dashboard:"+auditID, func() (*Dashboard, error) {
		now := f.now()
		d := &Dashboard{
			AuditID:            auditID,
			SubmissionsByStage: make(map[string]int),
			FindingsByStatus:   make(map[string]int),
			FindingsBySeverity: make(map[string]int),
			HeadHash:           ledgerdomain.GenesisHash,
		}
		reqs, err := f.requirements.ListRequirementsByAudit(ctx, auditID)
		if err != nil {
			return nil, err
		}
		d.Requirements = len(reqs)
		for _, r := range reqs {
			if r.Overdue(now) {
				d.OverdueRequirements++
			}
			d.MaxEscalationLevel = max(d.MaxEscalationLevel, r.EscalationLevel)
		}

		subs, err := f.submissions.ListSubmissionsByAudit(ctx, auditID)
		if err != nil {
			return nil, err
		}
		for _, st := range submissiondomain.Stages {
			d.SubmissionsByStage[string(st)] = 0
		}
		for _, s := range subs {
			d.SubmissionsByStage[string(s.Stage)]++
		}

		findings, err := f.findings.ListFindingsByAudit(ctx, auditID)
		if err != nil {
			return nil, err
		}
		for _, sev := range findingdomain.Severities {
			d.FindingsBySeverity[string(sev)] = 0
		}
		for _, fd := range findings {
			d.FindingsByStatus[string(fd.Status)]++
			d.FindingsBySeverity[string(fd.Severity)]++
			if fd.Overdue(now) {
				d.OverdueFindings++
			}
			d.MaxEscalationLevel = max(d.MaxEscalationLevel, fd.EscalationLevel)
		}

		head, err := f.ledger.Blocks(ctx, auditID, ledgerdomain.Query{})
		if err != nil {
			return nil, err
		}
		d.ChainLength = int64(len(head))
		if len(head) > 0 {
			d.HeadHash = head[len(head)-1].Hash
		}
		_, d.Halted, err = f.ledger.Halted(ctx, auditID)
		if err != nil {
			return nil, err
		}
		return d, nil
	}, func(d *Dashboard) *Meta { return &d.Meta })
}

// Notifications returns the most recent notifications of an audit, newest first.
func (f *Facade) Notifications(auditID string, limit int) []notification.Notification {
	if f.inbox == nil {
		return []notification.Notification{}
	}
	return f.inbox.Recent(auditID, limit)
}

func toEntry(b *ledgerdomain.Block) Entry {
	return Entry{
		BlockNumber: b.Number,
		Hash:        b.Hash,
		PrevHash:    b.PrevHash,
		Category:    b.Category(),
		Action:      b.Action,
		Actor:       b.Actor,
		ActorType:   string(b.ActorType),
		EntityKind:  string(b.EntityKind),
		EntityID:    b.EntityID,
		Payload:     b.Payload,
		CreatedAt:   b.CreatedAt,
	}
}
