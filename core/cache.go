// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the result cache used by the document manager to avoid
// hitting the database for documents loaded by identifier.
package core

import (
	"context"
	"sync"
	"time"
)

// Cache defines the interface for pluggable caching mechanisms.
//
// A Cache stores encoded documents with a TTL (time-to-live). Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// memoryCache is a simple in-memory Cache implementation.
//
// It uses a map protected by a RWMutex and supports expiration.
type memoryCache struct {
	data  map[string]memoryEntry
	mutex sync.RWMutex
	now   func() time.Time
}

type memoryEntry struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates a new in-memory Cache instance.
func NewMemoryCache() Cache {
	return &memoryCache{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// Get retrieves a value from the cache by key.
// It returns false if the key does not exist or is expired.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiration.IsZero() && c.now().After(entry.expiration) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value in the cache with the given TTL (time-to-live).
// If TTL is 0, the entry does not expire.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.data[key] = memoryEntry{value: append([]byte(nil), value...), expiration: exp}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.data, key)
	return nil
}
