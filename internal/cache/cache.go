// SPDX-License-Identifier: MIT

// Package cache backs the read API's record listings with a small
// byte-level cache, either in-memory or Redis.
package cache

import (
	"sync"
	"time"
)

// Cache stores serialized values with a TTL. The read API keeps
// encoded JSON in it, so values are plain byte slices. Entries expire
// by TTL only; staleness is bounded by the configured cache window.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// memoryCache is the in-process implementation. Expired entries are
// dropped lazily on read; the working set is a handful of listing keys,
// so no janitor is needed.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory returns an in-memory Cache.
func NewMemory() Cache {
	return &memoryCache{entries: make(map[string]entry)}
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// noop disables caching entirely.
type noop struct{}

// NewNoop returns a Cache that stores nothing.
func NewNoop() Cache { return noop{} }

func (noop) Get(string) ([]byte, bool)         { return nil, false }
func (noop) Set(string, []byte, time.Duration) {}
