// Package notification turns selected ledger blocks into notifications for people: deadline
// warnings, escalations, new findings and review decisions.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	ledgerdomain "auditflow/backend/internal/ledger/domain"
)

// Kinds of notification.
const (
	KindDeadlineApproaching = "deadline_approaching"
	KindEscalated           = "escalated"
	KindEscalationOverride  = "escalation_override"
	KindFindingOpened       = "finding_opened"
	KindReviewDecision      = "review_decision"
)

// deliveryTimeout bounds one asynchronous delivery to a remote notifier.
const deliveryTimeout = 5 * time.Second

// Notification is one message for the people following an audit.
type Notification struct {
	ID          string    `json:"id"`
	AuditID     string    `json:"audit_id"`
	Kind        string    `json:"kind"`
	EntityKind  string    `json:"entity_kind"`
	EntityID    string    `json:"entity_id"`
	Level       int       `json:"level,omitempty"`
	Message     string    `json:"message"`
	BlockNumber int64     `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer is a ledger observer. The inbox is written synchronously; remote notifiers are
// best-effort and asynchronous so a slow broker never holds up a workflow mutation.
type Observer struct {
	inbox  *Inbox
	remote Notifier
}

// NewObserver returns an observer writing to inbox and, when given, to remote notifiers.
func NewObserver(inbox *Inbox, remote ...Notifier) *Observer {
	o := &Observer{inbox: inbox}
	if len(remote) > 0 {
		o.remote = Fanout(remote)
	}
	return o
}

// BlockAppended converts the block into a notification when it is of interest.
func (o *Observer) BlockAppended(ctx context.Context, b *ledgerdomain.Block) {
	n, ok := FromBlock(b)
	if !ok {
		return
	}
	if o.inbox != nil {
		_ = o.inbox.Notify(ctx, n)
	}
	if o.remote == nil {
		return
	}
	go func() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := o.remote.Notify(deliverCtx, n); err != nil {
			log.Printf("notification: deliver %s for %s: %v", n.Kind, n.EntityID, err)
		}
	}()
}

type blockPayload struct {
	ToLevel      *int   `json:"to_level"`
	FromLevel    *int   `json:"from_level"`
	Deadline     string `json:"deadline"`
	Hours        *int64 `json:"hours_remaining"`
	DocumentType string `json:"document_type"`
	Title        string `json:"title"`
	Severity     string `json:"severity"`
	Source       string `json:"source"`
	Reason       string `json:"reason"`
	To           string `json:"to"`
}

// FromBlock maps a ledger block to a notification. It reports false for blocks nobody needs
// to hear about.
func FromBlock(b *ledgerdomain.Block) (Notification, bool) {
	if b == nil {
		return Notification{}, false
	}
	var p blockPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return Notification{}, false
	}
	n := Notification{
		ID:          fmt.Sprintf("%s-%d", b.AuditID, b.Number),
		AuditID:     b.AuditID,
		EntityKind:  string(b.EntityKind),
		EntityID:    b.EntityID,
		BlockNumber: b.Number,
		BlockHash:   b.Hash,
		CreatedAt:   b.CreatedAt,
	}
	switch {
	case b.Action == "requirement.deadline_approaching":
		n.Kind = KindDeadlineApproaching
		n.Message = fmt.Sprintf("%s is due %s", orDefault(p.DocumentType, "Requirement"), p.Deadline)
		if p.Hours != nil {
			n.Message += fmt.Sprintf(" (%dh left)", *p.Hours)
		}
	case strings.HasSuffix(b.Action, ".escalated"):
		n.Kind = KindEscalated
		if p.ToLevel != nil {
			n.Level = *p.ToLevel
		}
		n.Message = fmt.Sprintf("%s escalated to level %d: %s", b.EntityKind, n.Level, p.Reason)
	case b.Action == "escalation.override":
		n.Kind = KindEscalationOverride
		if p.ToLevel != nil {
			n.Level = *p.ToLevel
		}
		n.Message = fmt.Sprintf("%s escalation set to level %d by %s: %s", b.EntityKind, n.Level, b.Actor, p.Reason)
	case b.Action == "finding.created":
		n.Kind = KindFindingOpened
		n.Message = fmt.Sprintf("%s finding opened (%s): %s", p.Severity, p.Source, p.Title)
	case b.Action == "submission.approved", b.Action == "submission.rejected", b.Action == "submission.needs_revision":
		n.Kind = KindReviewDecision
		n.Message = "Submission " + strings.ReplaceAll(p.To, "_", " ")
		if p.Reason != "" {
			n.Message += ": " + p.Reason
		}
	default:
		return Notification{}, false
	}
	return n, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
