// Package storage archives statement text and extraction results in object
// storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finextract/internal/domain"
	"finextract/internal/port"
)

const (
	inputObject  = "input.txt"
	resultObject = "result.json"
)

// Archive stores each run under <prefix>/<run id>/ in one bucket.
// A nil *Archive is valid and reports ErrStorageDisabled.
type Archive struct {
	store  port.ObjectStorage
	bucket string
	prefix string
	logger *zap.Logger
}

// NewArchive creates an Archive writing to bucket under prefix.
func NewArchive(store port.ObjectStorage, bucket, prefix string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

// Keys returns the object keys of a run's input text and result.
func (a *Archive) Keys(runID uuid.UUID) (inputKey, resultKey string) {
	dir := path.Join(a.prefix, runID.String())
	return path.Join(dir, inputObject), path.Join(dir, resultObject)
}

// Store uploads the statement text and the result JSON of a run and returns
// the result key. A failed result upload removes the input object again.
func (a *Archive) Store(ctx context.Context, runID uuid.UUID, text string, result []byte) (string, error) {
	if a == nil {
		return "", domain.ErrStorageDisabled
	}
	inputKey, resultKey := a.Keys(runID)

	if _, err := a.store.Put(ctx, port.PutObject{
		Bucket:      a.bucket,
		Key:         inputKey,
		Body:        bytes.NewReader([]byte(text)),
		ContentType: "text/plain; charset=utf-8",
		Size:        int64(len(text)),
		Metadata:    objectMetadata(runID, inputObject),
	}); err != nil {
		return "", fmt.Errorf("archiving input: %w", err)
	}

	if _, err := a.store.Put(ctx, port.PutObject{
		Bucket:      a.bucket,
		Key:         resultKey,
		Body:        bytes.NewReader(result),
		ContentType: "application/json",
		Size:        int64(len(result)),
		Metadata:    objectMetadata(runID, resultObject),
	}); err != nil {
		if delErr := a.store.Delete(ctx, a.bucket, inputKey); delErr != nil {
			a.logger.Warn("failed to remove orphaned input", zap.String("key", inputKey), zap.Error(delErr))
		}
		return "", fmt.Errorf("archiving result: %w", err)
	}
	return resultKey, nil
}

// Remove deletes both archived objects of a run. Every key is attempted;
// the first failure is returned.
func (a *Archive) Remove(ctx context.Context, runID uuid.UUID) error {
	if a == nil {
		return domain.ErrStorageDisabled
	}
	inputKey, resultKey := a.Keys(runID)
	var first error
	for _, key := range []string{inputKey, resultKey} {
		if err := a.store.Delete(ctx, a.bucket, key); err != nil && first == nil {
			first = fmt.Errorf("removing %s: %w", key, err)
		}
	}
	return first
}

// FetchText downloads statement text stored under key.
func (a *Archive) FetchText(ctx context.Context, key string) (string, error) {
	if a == nil {
		return "", domain.ErrStorageDisabled
	}
	data, err := a.store.Get(ctx, a.bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", key, err)
	}
	return string(data), nil
}

// ResultURL returns a presigned download URL for an archived result.
func (a *Archive) ResultURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if a == nil {
		return "", domain.ErrStorageDisabled
	}
	return a.store.PresignGet(ctx, a.bucket, key, ttl)
}

func objectMetadata(runID uuid.UUID, object string) map[string]string {
	return map[string]string{"run-id": runID.String(), "object": object}
}
