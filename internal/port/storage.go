package port

import (
	"context"
	"io"
	"time"
)

// PutObject describes one object written to the archive bucket.
type PutObject struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
	// Metadata is stored as user-defined object metadata.
	Metadata map[string]string
}

// PutResult contains the result of a successful write.
type PutResult struct {
	Location string
	ETag     string
}

// ObjectStorage abstracts the archive bucket holding statement text and
// extraction results.
type ObjectStorage interface {
	Put(ctx context.Context, obj PutObject) (*PutResult, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
