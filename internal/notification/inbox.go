package notification

import (
	"context"
	"sync"
)

// DefaultInboxSize is the number of notifications kept per audit.
const DefaultInboxSize = 500

// Inbox keeps the most recent notifications of each audit in memory.
type Inbox struct {
	mu    sync.RWMutex
	size  int
	byAud map[string][]Notification
}

// NewInbox returns an inbox keeping up to size notifications per audit.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size, byAud: make(map[string][]Notification)}
}

func (i *Inbox) Notify(ctx context.Context, n Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	list := append(i.byAud[n.AuditID], n)
	if len(list) > i.size {
		list = append([]Notification(nil), list[len(list)-i.size:]...)
	}
	i.byAud[n.AuditID] = list
	return nil
}

// Recent returns up to limit notifications of the audit, newest first. limit <= 0 returns all.
func (i *Inbox) Recent(auditID string, limit int) []Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()
	list := i.byAud[auditID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Notification, 0, limit)
	for j := len(list) - 1; j >= 0 && len(out) < limit; j-- {
		out = append(out, list[j])
	}
	return out
}
