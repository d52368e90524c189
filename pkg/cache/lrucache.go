package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruCacheItem is the internal structure stored in the linked list.
type lruCacheItem[K comparable, V any] struct {
	key   K
	value V
}

// InMemoryLRUCache is a generic, thread-safe PresenceCache with a fixed number
// of entries and a Least Recently Used eviction policy. It is the memory-pressure
// policy for the memory tier: evicted entries are still on disk.
type InMemoryLRUCache[K comparable, V any] struct {
	maxSize int
	onEvict func(key K)

	mu    sync.Mutex
	ll    *list.List          // Used to track the order of items (recency).
	cache map[K]*list.Element // Used for fast key lookups.
}

// NewInMemoryLRUCache creates a new size-limited, in-memory LRU cache.
// - maxSize: The maximum number of items to store in the cache. Must be > 0.
// - onEvict: An optional callback invoked (under the cache lock) for each evicted key.
func NewInMemoryLRUCache[K comparable, V any](maxSize int, onEvict func(key K)) (*InMemoryLRUCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &InMemoryLRUCache[K, V]{
		maxSize: maxSize,
		onEvict: onEvict,
		ll:      list.New(),
		cache:   make(map[K]*list.Element),
	}, nil
}

// Fetch retrieves an item and marks it as the most recently used.
func (c *InMemoryLRUCache[K, V]) Fetch(_ context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*lruCacheItem[K, V]).value, nil
	}
	var zero V
	return zero, fmt.Errorf("key '%v' not in LRU cache: %w", key, ErrCacheMiss)
}

// Set stores or replaces an item, evicting the least recently used item if the
// cache is over capacity afterwards.
func (c *InMemoryLRUCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		elem.Value.(*lruCacheItem[K, V]).value = value
		c.ll.MoveToFront(elem)
		return nil
	}

	element := c.ll.PushFront(&lruCacheItem[K, V]{key: key, value: value})
	c.cache[key] = element

	if c.ll.Len() > c.maxSize {
		c.evict()
	}
	return nil
}

// Delete removes an item if present.
func (c *InMemoryLRUCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	return nil
}

// Len returns the number of resident items.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// evict removes the least recently used item from the cache.
// This method is unexported and must be called within a locked mutex.
func (c *InMemoryLRUCache[K, V]) evict() {
	elementToRemove := c.ll.Back()
	if elementToRemove != nil {
		itemToRemove := c.ll.Remove(elementToRemove).(*lruCacheItem[K, V])
		delete(c.cache, itemToRemove.key)
		if c.onEvict != nil {
			c.onEvict(itemToRemove.key)
		}
	}
}

// Close is a no-op for the in-memory cache but satisfies the PresenceCache interface.
func (c *InMemoryLRUCache[K, V]) Close() error {
	return nil
}
