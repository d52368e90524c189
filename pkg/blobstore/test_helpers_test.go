package blobstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"google.golang.org/api/iterator"
)

// --- Mock GCS Client Components ---

// mockGCSBucket keeps committed objects in a map. Objects become visible only
// when their writer is closed without error.
type mockGCSBucket struct {
	sync.Mutex
	objects  map[string][]byte
	writeErr error
	listErr  error
}

func newMockGCSBucket() *mockGCSBucket {
	return &mockGCSBucket{objects: make(map[string][]byte)}
}

func (b *mockGCSBucket) Object(name string) blobstore.GCSObjectHandle {
	return &mockGCSObject{bucket: b, name: name}
}

func (b *mockGCSBucket) Objects(_ context.Context, q *storage.Query) blobstore.GCSObjectIterator {
	b.Lock()
	defer b.Unlock()
	it := &mockGCSIterator{err: b.listErr}
	for name := range b.objects {
		if strings.HasPrefix(name, q.Prefix) {
			it.names = append(it.names, name)
		}
	}
	sort.Strings(it.names)
	return it
}

type mockGCSObject struct {
	bucket *mockGCSBucket
	name   string
}

func (o *mockGCSObject) NewWriter(ctx context.Context) blobstore.GCSWriter {
	return &mockGCSWriter{ctx: ctx, object: o}
}

func (o *mockGCSObject) NewReader(_ context.Context) (io.ReadCloser, error) {
	o.bucket.Lock()
	defer o.bucket.Unlock()
	data, ok := o.bucket.objects[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *mockGCSObject) Delete(_ context.Context) error {
	o.bucket.Lock()
	defer o.bucket.Unlock()
	if _, ok := o.bucket.objects[o.name]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(o.bucket.objects, o.name)
	return nil
}

type mockGCSWriter struct {
	ctx    context.Context
	object *mockGCSObject
	buf    bytes.Buffer
	closed bool
}

func (w *mockGCSWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write on closed writer")
	}
	if err := w.object.bucket.writeErr; err != nil {
		return 0, err
	}
	return w.buf.Write(p)
}

func (w *mockGCSWriter) Close() error {
	if w.closed {
		return errors.New("already closed")
	}
	w.closed = true
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.object.bucket.Lock()
	defer w.object.bucket.Unlock()
	w.object.bucket.objects[w.object.name] = bytes.Clone(w.buf.Bytes())
	return nil
}

type mockGCSIterator struct {
	names []string
	err   error
}

func (it *mockGCSIterator) Next() (*storage.ObjectAttrs, error) {
	if it.err != nil {
		return nil, it.err
	}
	if len(it.names) == 0 {
		return nil, iterator.Done
	}
	name := it.names[0]
	it.names = it.names[1:]
	return &storage.ObjectAttrs{Name: name}, nil
}

// mockGCSClient is a mock GCSClient with a single bucket.
type mockGCSClient struct {
	bucket *mockGCSBucket
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: newMockGCSBucket()}
}

func (m *mockGCSClient) Bucket(_ string) blobstore.GCSBucketHandle {
	return m.bucket
}
