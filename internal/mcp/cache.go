package mcp

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// responseCache maps (kind, server, name, canonical_arguments) to the last
// successful response. Eviction is TTL-expiry plus oldest-first once the
// size bound is exceeded, adapted from the teacher's DedupeCache (which
// dedupes booleans keyed by timestamp) generalised to store response
// values.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	response  *ToolResponse
	timestamp int64 // unix millis
}

func newResponseCache(ttl time.Duration, maxSize int) *responseCache {
	if ttl < 0 {
		ttl = 0
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// cacheKey builds a deterministic, order-independent encoding of
// (kind, server, name, arguments).
func cacheKey(kind, server, name string, arguments map[string]any) string {
	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	canon := ""
	for _, k := range keys {
		canon += fmt.Sprintf("%s=%v;", k, arguments[k])
	}
	return fmt.Sprintf("%s|%s|%s|%s", kind, server, name, canon)
}

// get returns the cached response for key, if present and not expired.
func (c *responseCache) get(key string) (*ToolResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().UnixMilli()-entry.timestamp >= c.ttl.Milliseconds() {
		delete(c.entries, key)
		return nil, false
	}
	return entry.response, true
}

// set stores resp under key, evicting expired and over-capacity entries.
func (c *responseCache) set(key string, resp *ToolResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	c.entries[key] = cacheEntry{response: resp, timestamp: now}
	c.prune(now)
}

func (c *responseCache) prune(nowUnix int64) {
	if c.ttl > 0 {
		cutoff := nowUnix - c.ttl.Milliseconds()
		for k, e := range c.entries {
			if e.timestamp < cutoff {
				delete(c.entries, k)
			}
		}
	}

	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestTS int64 = int64(^uint64(0) >> 1)
		for k, e := range c.entries {
			if e.timestamp < oldestTS {
				oldestTS = e.timestamp
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// invalidate removes a single key.
func (c *responseCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
