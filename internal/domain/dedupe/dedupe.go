// Package dedupe provides a cheap in-memory pre-check for game
// dedup keys.
//
// The cache is advisory only: the corpus store's UNIQUE index on the
// (white, black, date, round, event) tuple remains the authoritative
// serialization point for duplicate detection. The cache exists so
// re-ingesting a file the corpus already holds skips the database
// round-trip for most records.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen dedup keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records
	// it if not. Returns true when key was already present.
	SeenAndRecord(ctx context.Context, key string) bool

	// Seen reports whether key was already recorded without recording
	// it. Producers use this to flag a probable duplicate while leaving
	// the actual recording to the ingest that confirms it.
	Seen(ctx context.Context, key string) bool

	// Unrecord removes a key so the same game is accepted again, e.g.
	// after a delete.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// keyCache implements Deduper with a bounded map plus a FIFO ring of
// insertion order. When the cache is full the oldest key is evicted;
// an evicted key simply falls through to the store's UNIQUE index.
type keyCache struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // FIFO ring, len(order) == maxSize once warmed up
	next    int      // ring write position
	maxSize int      // <= 0 means unbounded
	size    atomic.Int64
}

// NewKeyCache creates a dedup-key cache with configuration options.
func NewKeyCache(opts ...Option) Deduper {
	c := &keyCache{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.seen = make(map[string]struct{})
	if c.maxSize > 0 {
		c.order = make([]string, c.maxSize)
	}
	return c
}

func (c *keyCache) SeenAndRecord(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}

	if c.maxSize > 0 {
		if old := c.order[c.next]; old != "" {
			if _, ok := c.seen[old]; ok {
				delete(c.seen, old)
				c.size.Add(-1)
			}
		}
		c.order[c.next] = key
		c.next = (c.next + 1) % c.maxSize
	}
	c.seen[key] = struct{}{}
	c.size.Add(1)
	return false
}

func (c *keyCache) Seen(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.seen[key]
	return ok
}

func (c *keyCache) Unrecord(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		delete(c.seen, key)
		c.size.Add(-1)
	}
	// The stale ring slot is left in place; eviction tolerates keys
	// that are no longer in the map.
}

func (c *keyCache) Size() int64 {
	return c.size.Load()
}
