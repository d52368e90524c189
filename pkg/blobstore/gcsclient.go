package blobstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// These interfaces cover the slice of the Cloud Storage client GCSStore needs,
// so the store can be tested without a real bucket.

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
	Objects(ctx context.Context, q *storage.Query) GCSObjectIterator
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) GCSWriter
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

// GCSObjectIterator abstracts a *storage.ObjectIterator. Next returns
// iterator.Done when the listing is exhausted.
type GCSObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// GCSWriter abstracts a *storage.Writer. The object only becomes visible when
// Close succeeds.
type GCSWriter interface {
	io.WriteCloser
}

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a concrete *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

func (a *gcsBucketHandleAdapter) Objects(ctx context.Context, q *storage.Query) GCSObjectIterator {
	return a.handle.Objects(ctx, q)
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) GCSWriter {
	return a.handle.NewWriter(ctx)
}

func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return a.handle.NewReader(ctx)
}

func (a *gcsObjectHandleAdapter) Delete(ctx context.Context) error {
	return a.handle.Delete(ctx)
}
