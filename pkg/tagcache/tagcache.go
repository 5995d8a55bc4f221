// Package tagcache implements the packet-tag replay cache described in
// spec.md §4.5: a time-windowed set of 16-byte tags, concurrency-safe for
// the low-contention insert/query pattern one write per packet produces.
package tagcache

import (
	"sync"
	"time"
)

// Tag is the 16-byte replay-detection value derived from a relayer's shared
// secret with the sender (spec.md §3).
type Tag [16]byte

// Cache is a time-windowed set of tags: a tag seen within the last Window
// is considered a replay. Entries older than Window are lazily reaped so
// memory is bounded by traffic over one window, not overall traffic.
//
// False positives within the window are unacceptable (spec.md §4.5); this
// implementation never reports one, since membership is an exact map
// lookup rather than a probabilistic structure.
type Cache struct {
	window time.Duration

	mu   sync.Mutex
	seen map[Tag]time.Time
}

// New constructs a Cache with the given replay window.
func New(window time.Duration) *Cache {
	return &Cache{
		window: window,
		seen:   make(map[Tag]time.Time),
	}
}

// CheckAndInsert reports whether tag has been seen within the current
// window. If not, it is recorded and false (not a replay) is returned; if
// so, true is returned and no state changes (spec.md Scenario C:
// "idempotent" on a second insert of the same tag).
func (c *Cache) CheckAndInsert(tag Tag) (isReplay bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seenAt, ok := c.seen[tag]; ok && now.Sub(seenAt) < c.window {
		return true
	}

	c.seen[tag] = now
	return false
}

// Reap drops every tag older than the replay window, bounding the cache's
// memory to recent traffic. Callers typically invoke this from a periodic
// maintenance loop alongside the other pipeline tasks.
func (c *Cache) Reap() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for tag, seenAt := range c.seen {
		if now.Sub(seenAt) >= c.window {
			delete(c.seen, tag)
			n++
		}
	}
	return n
}

// Len reports the current number of tracked tags, primarily for tests and
// metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
