package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	ledgerdomain "auditflow/backend/internal/ledger/domain"
)

func block(action string, kind ledgerdomain.EntityKind, payload string) *ledgerdomain.Block {
	return &ledgerdomain.Block{
		AuditID:    "audit-1",
		Number:     7,
		Hash:       "abc",
		Actor:      "admin-1",
		Action:     action,
		EntityKind: kind,
		EntityID:   "e-1",
		Payload:    json.RawMessage(payload),
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFromBlock(t *testing.T) {
	testCases := []struct {
		name    string
		b       *ledgerdomain.Block
		kind    string
		level   int
		message string
	}{
		{"deadline", block("requirement.deadline_approaching", ledgerdomain.EntityRequirement,
			`{"deadline":"2026-01-03T00:00:00Z","document_type":"SOC2 report","hours_remaining":20}`),
			KindDeadlineApproaching, 0, "SOC2 report is due 2026-01-03T00:00:00Z (20h left)"},
		{"escalated", block("finding.escalated", ledgerdomain.EntityFinding, `{"from_level":1,"to_level":2,"reason":"finding overdue"}`),
			KindEscalated, 2, "finding escalated to level 2: finding overdue"},
		{"override", block("escalation.override", ledgerdomain.EntityRequirement, `{"from_level":3,"to_level":0,"reason":"extension"}`),
			KindEscalationOverride, 0, "requirement escalation set to level 0 by admin-1: extension"},
		{"finding", block("finding.created", ledgerdomain.EntityFinding, `{"severity":"major","source":"ai_detected","title":"AI: missing signature"}`),
			KindFindingOpened, 0, "major finding opened (ai_detected): AI: missing signature"},
		{"decision", block("submission.needs_revision", ledgerdomain.EntitySubmission, `{"from":"under_review","to":"needs_revision","reason":"page 3 unsigned"}`),
			KindReviewDecision, 0, "Submission needs revision: page 3 unsigned"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := FromBlock(tc.b)
			if !ok {
				t.Fatal("FromBlock ignored the block")
			}
			if n.Kind != tc.kind || n.Level != tc.level || n.Message != tc.message {
				t.Errorf("notification = %+v", n)
			}
			if n.ID != "audit-1-7" || n.BlockHash != "abc" || n.EntityID != "e-1" {
				t.Errorf("identity = %s %s %s", n.ID, n.BlockHash, n.EntityID)
			}
		})
	}

	for _, action := range []string{"submission.created", "submission.ai_validating", "requirement.updated"} {
		if _, ok := FromBlock(block(action, ledgerdomain.EntitySubmission, `{}`)); ok {
			t.Errorf("%s should not notify", action)
		}
	}
	if _, ok := FromBlock(nil); ok {
		t.Error("nil block should not notify")
	}
}

func TestInbox_RecentNewestFirstAndCapped(t *testing.T) {
	inbox := NewInbox(3)
	for i := 1; i <= 5; i++ {
		_ = inbox.Notify(context.Background(), Notification{ID: fmt.Sprint(i), AuditID: "audit-1"})
	}
	_ = inbox.Notify(context.Background(), Notification{ID: "other", AuditID: "audit-2"})

	got := inbox.Recent("audit-1", 0)
	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.ID
	}
	if strings.Join(ids, ",") != "5,4,3" {
		t.Errorf("Recent = %v, want [5 4 3]", ids)
	}
	if got := inbox.Recent("audit-1", 1); len(got) != 1 || got[0].ID != "5" {
		t.Errorf("Recent limit 1 = %+v", got)
	}
	if got := inbox.Recent("missing", 10); len(got) != 0 {
		t.Errorf("Recent for unknown audit = %+v", got)
	}
}

type chanNotifier struct {
	ch  chan Notification
	err error
}

func (c *chanNotifier) Notify(ctx context.Context, n Notification) error {
	c.ch <- n
	return c.err
}

func TestObserver_DeliversToInboxAndRemote(t *testing.T) {
	inbox := NewInbox(10)
	remote := &chanNotifier{ch: make(chan Notification, 1)}
	o := NewObserver(inbox, remote)

	o.BlockAppended(context.Background(), block("requirement.escalated", ledgerdomain.EntityRequirement, `{"to_level":1,"reason":"deadline passed"}`))
	o.BlockAppended(context.Background(), block("submission.created", ledgerdomain.EntitySubmission, `{}`))

	if got := inbox.Recent("audit-1", 0); len(got) != 1 || got[0].Kind != KindEscalated {
		t.Fatalf("inbox = %+v", got)
	}
	select {
	case n := <-remote.ch:
		if n.Level != 1 {
			t.Errorf("remote level = %d", n.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote notifier not called")
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	errBroker := errors.New("broker down")
	ok := &chanNotifier{ch: make(chan Notification, 1)}
	failing := &chanNotifier{ch: make(chan Notification, 1), err: errBroker}
	err := Fanout{failing, ok}.Notify(context.Background(), Notification{ID: "n"})
	if !errors.Is(err, errBroker) {
		t.Errorf("err = %v, want broker error", err)
	}
	if len(ok.ch) != 1 {
		t.Error("a failing notifier stopped delivery to the others")
	}
}
