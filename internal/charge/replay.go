package charge

import (
	"sync"
	"time"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

const defaultReplayTTL = 10 * time.Minute

// replayCache remembers settled outcomes per request id for a bounded time.
// Entries are pruned lazily on write; the window only needs to outlive the
// caller's retry-with-backoff horizon.
type replayCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]replayEntry
	lastPrune time.Time
}

type replayEntry struct {
	out      counter.Outcome
	storedAt time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &replayCache{
		ttl:     ttl,
		entries: make(map[string]replayEntry),
	}
}

func (c *replayCache) get(requestID string) (counter.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[requestID]
	if !ok || time.Since(e.storedAt) > c.ttl {
		return counter.Outcome{}, false
	}
	return e.out, true
}

func (c *replayCache) put(requestID string, out counter.Outcome) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPrune) > c.ttl {
		for id, e := range c.entries {
			if now.Sub(e.storedAt) > c.ttl {
				delete(c.entries, id)
			}
		}
		c.lastPrune = now
	}
	c.entries[requestID] = replayEntry{out: out, storedAt: now}
}
