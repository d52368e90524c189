// Package cache provides the generic in-process tiers used as the fast path in
// front of durable comic storage.
package cache

import "errors"

// ErrCacheMiss is returned by Fetch when the key is not present.
var ErrCacheMiss = errors.New("key not found in cache")
