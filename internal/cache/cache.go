// Package cache maps context fingerprints to previously obtained provider
// replies. A hit short-circuits the whole provider path for that cycle,
// which is what keeps the daily budget usable under a short poll interval.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/colmena-dev/colmena/internal/provider"
)

// Fingerprint returns the deterministic digest of a built context plus the
// system prompt, used as the cache key.
func Fingerprint(context, systemPrompt string) string {
	h := sha256.New()
	h.Write([]byte(context))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	fingerprint string
	reply       provider.Reply
	createdAt   time.Time
}

// Stats tracks cache effectiveness for the status endpoint.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// ResponseCache is a TTL- and capacity-bounded reply cache. Eviction is
// FIFO: once full, inserting drops the least-recently-inserted entry.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // insertion order, oldest first
	max     int
	ttl     time.Duration
	stats   Stats
	now     func() time.Time
}

// New creates a ResponseCache holding at most maxEntries replies, each valid
// for ttl after insertion.
func New(maxEntries int, ttl time.Duration, now func() time.Time) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{
		entries: make(map[string]*entry),
		max:     maxEntries,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached reply for fingerprint. Entries older than the TTL
// are treated as misses and purged on the spot.
func (c *ResponseCache) Get(fingerprint string) (provider.Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		c.stats.Misses++
		return provider.Reply{}, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		c.remove(fingerprint)
		c.stats.Misses++
		return provider.Reply{}, false
	}
	c.stats.Hits++
	return e.reply, true
}

// Put stores reply under fingerprint, evicting the oldest entry when full.
// Re-inserting an existing fingerprint refreshes its content and age but
// keeps its place in the eviction order.
func (c *ResponseCache) Put(fingerprint string, reply provider.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fingerprint]; ok {
		e.reply = reply
		e.createdAt = c.now()
		return
	}

	if len(c.entries) >= c.max {
		c.remove(c.order[0])
		c.stats.Evictions++
	}

	c.entries[fingerprint] = &entry{
		fingerprint: fingerprint,
		reply:       reply,
		createdAt:   c.now(),
	}
	c.order = append(c.order, fingerprint)
}

// Stats returns a snapshot of cache counters.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

// remove deletes fingerprint from both the map and the order slice.
// Callers hold mu.
func (c *ResponseCache) remove(fingerprint string) {
	delete(c.entries, fingerprint)
	for i, fp := range c.order {
		if fp == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
