package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryRegistry holds leases in process. It only excludes executions inside the same process.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: map[string]entry{}, now: time.Now}
}

func (r *MemoryRegistry) Acquire(_ context.Context, ids []string, ttl time.Duration) (*Lease, error) {
	keys := normalize(ids)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, key := range keys {
		if e, ok := r.entries[key]; ok && now.Before(e.expiresAt) {
			return nil, ErrHeld
		}
	}

	l := &Lease{Token: uuid.New().String(), IDs: keys, ExpiresAt: now.Add(ttl)}
	for _, key := range keys {
		r.entries[key] = entry{token: l.Token, expiresAt: l.ExpiresAt}
	}
	return l, nil
}

func (r *MemoryRegistry) Release(_ context.Context, l *Lease) error {
	if l == nil {
		return ErrNotHeld
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	released := 0
	for _, key := range l.IDs {
		e, ok := r.entries[key]
		if !ok || e.token != l.Token {
			continue
		}
		delete(r.entries, key)
		if now.Before(e.expiresAt) {
			released++
		}
	}
	if released == 0 {
		return ErrNotHeld
	}
	return nil
}
