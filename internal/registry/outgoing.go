// Package registry keeps a short-lived, process-local map from gateway
// message ids to the phone used when sending. Entries are advisory: losing
// them only degrades status correlation.
package registry

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 10000
)

type entry struct {
	phone    string
	storedAt time.Time
}

type OutgoingRegistry struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry
	now        func() time.Time
}

func NewOutgoingRegistry(ttl time.Duration) *OutgoingRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OutgoingRegistry{
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		entries:    make(map[string]entry),
		now:        time.Now,
	}
}

// WithClock swaps the time source. Intended for tests.
func (r *OutgoingRegistry) WithClock(now func() time.Time) *OutgoingRegistry {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
	return r
}

// WithMaxEntries bounds the registry size.
func (r *OutgoingRegistry) WithMaxEntries(n int) *OutgoingRegistry {
	r.mu.Lock()
	if n > 0 {
		r.maxEntries = n
	}
	r.mu.Unlock()
	return r
}

// Remember records the phone a message was sent to.
func (r *OutgoingRegistry) Remember(messageID, phone string) {
	messageID = strings.TrimSpace(messageID)
	phone = strings.TrimSpace(phone)
	if messageID == "" || phone == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	if _, exists := r.entries[messageID]; !exists && len(r.entries) >= r.maxEntries {
		r.evictOldest()
	}
	r.entries[messageID] = entry{phone: phone, storedAt: now}
}

// Resolve returns the remembered phone. Reads never extend an entry's TTL.
func (r *OutgoingRegistry) Resolve(messageID string) (string, bool) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	e, ok := r.entries[messageID]
	if !ok {
		return "", false
	}
	return e.phone, true
}

func (r *OutgoingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep(r.now())
	return len(r.entries)
}

func (r *OutgoingRegistry) sweep(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.storedAt) > r.ttl {
			delete(r.entries, id)
		}
	}
}

func (r *OutgoingRegistry) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, e := range r.entries {
		if oldestID == "" || e.storedAt.Before(oldest) {
			oldestID, oldest = id, e.storedAt
		}
	}
	if oldestID != "" {
		delete(r.entries, oldestID)
	}
}
