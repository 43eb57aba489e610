package executor

import (
	"sync"
	"time"
)

// Dedup rejects request ids seen within a time-to-live window. It is safe
// for concurrent use.
type Dedup struct {
	seen map[string]time.Time // request id -> first seen
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate returns true if id was recorded within the TTL window.
// Otherwise it records id and returns false.
func (d *Dedup) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if firstSeen, ok := d.seen[id]; ok && now.Sub(firstSeen) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
