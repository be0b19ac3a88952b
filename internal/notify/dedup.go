package notify

import (
	"sync"
	"time"
)

// dedupPruneSize is the number of remembered keys above which expired ones
// are dropped.
const dedupPruneSize = 256

// dedup suppresses repeats of the same key within a time-to-live window. It
// is safe for concurrent use.
type dedup struct {
	seen map[string]time.Time // key -> last sent
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// isDuplicate returns true if key was recorded within the TTL. Otherwise it
// records key and returns false.
func (d *dedup) isDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now

	if len(d.seen) > dedupPruneSize {
		for k, ts := range d.seen {
			if now.Sub(ts) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return false
}
