package lease

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrHeld is returned when any of the requested ids is already leased.
	ErrHeld = errors.New("lease held")
	// ErrNotHeld is returned when releasing a lease that expired or was never granted.
	ErrNotHeld = errors.New("lease not held")
)

// Lease is the handle returned by Acquire. It must be passed back to Release.
type Lease struct {
	Token     string
	IDs       []string
	ExpiresAt time.Time
}

// Registry grants exclusive, expiring leases over sets of resource ids.
type Registry interface {
	// Acquire leases every id or none of them.
	Acquire(ctx context.Context, ids []string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

// normalize returns the sorted distinct non-empty ids.
func normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
