package storage

import "context"

// ObjectStore is the blob interface the pipeline works against. Keys are
// bucket-relative; PublicURL must return the externally reachable URL for a
// stored object, which is what gets persisted in the database.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)

	PublicURL(bucket, key string) string
}
