package cache

import (
	"context"
	"io"
)

// PresenceCache defines the contract for the memory tier. Values are stored
// and removed explicitly; there is no fallback source behind it, the caller
// decides what to do on a miss.
type PresenceCache[K comparable, V any] interface {
	// Set explicitly stores a value for a key. Concurrent writes to the same key
	// are last-write-wins.
	Set(ctx context.Context, key K, value V) error
	// Fetch retrieves a value by its key, returning ErrCacheMiss when absent.
	Fetch(ctx context.Context, key K) (V, error)
	// Delete explicitly removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key K) error
	// Len reports the number of resident entries.
	Len() int
	io.Closer
}
