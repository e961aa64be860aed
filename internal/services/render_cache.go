package services

import (
	"context"
	"sync"
	"time"
)

// RenderEntry represents one in-flight or recently finished render of a storage key.
type RenderEntry struct {
	done    chan struct{}
	err     error
	created time.Time
}

// Wait blocks until the render finishes and returns its error.
func (e *RenderEntry) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RenderEntry) pending() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// RenderCache tracks renders by storage key so that concurrent requests for one page share a
// single render. It is process-local; entries are dropped ttl after creation once resolved, and
// immediately when the render fails.
type RenderCache struct {
	mu      sync.Mutex
	entries map[string]*RenderEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewRenderCache creates an empty cache whose resolved entries live for ttl.
func NewRenderCache(ttl time.Duration) *RenderCache {
	return &RenderCache{
		entries: make(map[string]*RenderEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Lookup returns the live entry for key, if any.
func (c *RenderCache) Lookup(key string) (*RenderEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.pending() && c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// Claim registers a new pending render for key and returns leader=true, unless a render for key
// is already pending, in which case that entry is returned with leader=false. The check and the
// insert happen under one lock.
func (c *RenderCache) Claim(key string) (entry *RenderEntry, leader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.pending() {
		return e, false
	}
	e := &RenderEntry{done: make(chan struct{}), created: c.now()}
	c.entries[key] = e
	return e, true
}

// Resolve finishes a claimed entry. A failed entry is removed so the failure is not cached.
func (c *RenderCache) Resolve(key string, entry *RenderEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.err = err
	close(entry.done)
	if err != nil && c.entries[key] == entry {
		delete(c.entries, key)
	}
}

// Sweep drops resolved entries older than the ttl and returns how many were removed.
// Pending entries are kept until they resolve.
func (c *RenderCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if !e.pending() && c.expired(e) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps the cache every interval until ctx is done.
func (c *RenderCache) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of tracked entries.
func (c *RenderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RenderCache) expired(e *RenderEntry) bool {
	return c.now().Sub(e.created) >= c.ttl
}
