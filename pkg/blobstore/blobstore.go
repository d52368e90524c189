// Package blobstore provides the durable tier of the comic cache: one object
// per day, addressed by its DateKey filename.
//
// Backends:
//   - FilesystemStore: a directory on any go-billy filesystem (local disk, memfs).
//   - GCSStore: objects under a prefix in a Cloud Storage bucket.
//   - RedisStore: string values under a key prefix in Redis.
//
// Every backend writes atomically: a reader sees either the previous complete
// object or the new complete object, never a partial write. An abandoned write
// leaves no object under the final name.
package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// ErrNotExist is returned by Read when no object is stored for the key.
var ErrNotExist = errors.New("blob does not exist")

// Store is the contract every durable backend satisfies.
type Store interface {
	// Read returns the stored bytes for key, or an error wrapping ErrNotExist.
	Read(ctx context.Context, key datekey.Key) ([]byte, error)
	// Write stores data for key atomically, replacing any previous object.
	Write(ctx context.Context, key datekey.Key, data []byte) error
	// Delete removes the object for key. Deleting an absent key returns nil.
	Delete(ctx context.Context, key datekey.Key) error
	// List returns the raw names of all stored objects. Names are not
	// validated; callers parse them with datekey.KeyFromFilename.
	List(ctx context.Context) ([]string, error)
	io.Closer
}
