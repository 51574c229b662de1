package gcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// StorageAdapter wraps the GCS client to implement repository.ObjectStoreClient.
type StorageAdapter struct {
	client *storage.Client
}

// NewStorageAdapter creates a StorageAdapter.
func NewStorageAdapter(ctx context.Context) (*StorageAdapter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewStorageAdapter: %w", err)
	}
	return &StorageAdapter{client: client}, nil
}

// Ping verifies bucket reachability for the health check by fetching its
// attributes — cheap, and fails the same way a real object operation would.
func (a *StorageAdapter) Ping(ctx context.Context, bucket string) error {
	_, err := a.client.Bucket(bucket).Attrs(ctx)
	if err != nil {
		return fmt.Errorf("gcpclient.Ping: %w", err)
	}
	return nil
}

// Upload writes data to a GCS object.
func (a *StorageAdapter) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	w := a.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcpclient.Upload write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcpclient.Upload close: %w", err)
	}
	return nil
}

// Download reads an object from GCS.
func (a *StorageAdapter) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.Download: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ListPrefix lists object names under prefix in bucket.
func (a *StorageAdapter) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := a.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcpclient.ListPrefix: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// ListTopLevelPrefixes lists the first-level "directories" in bucket (object
// names up to and including their first "/"), using GCS's delimiter query
// rather than enumerating every object. The object layout keys each
// document's blobs under "{uuid}/...", so this returns one entry per
// document UUID with object-store data, trimmed of the trailing slash.
func (a *StorageAdapter) ListTopLevelPrefixes(ctx context.Context, bucket string) ([]string, error) {
	it := a.client.Bucket(bucket).Objects(ctx, &storage.Query{Delimiter: "/"})
	var prefixes []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcpclient.ListTopLevelPrefixes: %w", err)
		}
		if attrs.Prefix != "" {
			prefixes = append(prefixes, strings.TrimSuffix(attrs.Prefix, "/"))
		}
	}
	return prefixes, nil
}

// ObjectUpdated returns the last-modified time of a single object, used by
// the GC sweep to judge whether an orphaned prefix has aged past its grace
// period before reclaiming it.
func (a *StorageAdapter) ObjectUpdated(ctx context.Context, bucket, object string) (time.Time, error) {
	attrs, err := a.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("gcpclient.ObjectUpdated: %w", err)
	}
	return attrs.Updated, nil
}

// DeletePrefix removes every object under prefix in bucket. Used to clean up
// a document's object-store blobs on cascade deletion or failed ingestion.
func (a *StorageAdapter) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	names, err := a.ListPrefix(ctx, bucket, prefix)
	if err != nil {
		return fmt.Errorf("gcpclient.DeletePrefix: %w", err)
	}
	for _, name := range names {
		if err := a.client.Bucket(bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gcpclient.DeletePrefix: delete %q: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying client.
func (a *StorageAdapter) Close() {
	a.client.Close()
}
