package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryPresenceCache is a thread-safe, unbounded in-memory PresenceCache.
// Readers never block each other; a writer briefly excludes readers.
type InMemoryPresenceCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewInMemoryPresenceCache creates a new in-memory presence cache.
func NewInMemoryPresenceCache[K comparable, V any]() *InMemoryPresenceCache[K, V] {
	return &InMemoryPresenceCache[K, V]{
		data: make(map[K]V),
	}
}

// Set stores a value for a key.
func (c *InMemoryPresenceCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// Fetch retrieves a value by its key.
func (c *InMemoryPresenceCache[K, V]) Fetch(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrCacheMiss)
	}
	return value, nil
}

// Delete removes a key.
func (c *InMemoryPresenceCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len returns the number of stored keys.
func (c *InMemoryPresenceCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close is a no-op for the in-memory implementation.
func (c *InMemoryPresenceCache[K, V]) Close() error {
	return nil
}
