package notify

import (
	"context"
	"sync"
	"time"

	"naija-nutri-hub/backend/internal/user/domain"
)

const (
	defaultOutboxTTL   = time.Hour
	outboxPerRecipient = 20
)

// Outbox is a dev-only Gateway that keeps sent messages in memory so local runs
// can read codes and reset links without a mail provider (GET /dev/outbox).
// It must not be enabled in production.
type Outbox struct {
	mu   sync.RWMutex
	m    map[string][]outboxEntry
	ttl  time.Duration
	nowF func() time.Time
}

type outboxEntry struct {
	msg    Message
	sentAt time.Time
}

// NewOutbox returns an empty dev outbox whose messages expire after an hour.
func NewOutbox() *Outbox {
	return &Outbox{
		m:    make(map[string][]outboxEntry),
		ttl:  defaultOutboxTTL,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Send records msg under its normalized recipient. It never fails.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	to := domain.NormalizeEmail(msg.To)
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := append(o.m[to], outboxEntry{msg: msg, sentAt: o.nowF()})
	if len(entries) > outboxPerRecipient {
		entries = entries[len(entries)-outboxPerRecipient:]
	}
	o.m[to] = entries
	return nil
}

// Messages returns the unexpired messages sent to email, oldest first.
// Expired entries are dropped lazily.
func (o *Outbox) Messages(_ context.Context, email string) []Message {
	to := domain.NormalizeEmail(email)
	cutoff := o.nowF().Add(-o.ttl)
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.m[to][:0]
	for _, e := range o.m[to] {
		if e.sentAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(o.m, to)
		return nil
	}
	o.m[to] = kept
	out := make([]Message, len(kept))
	for i, e := range kept {
		out[i] = e.msg
	}
	return out
}
