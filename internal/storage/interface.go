package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ObjectStore keeps binary blobs addressed by bucket and key.
// Callers treat every failure as terminal for the current attempt.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

var (
	// ErrStore is the root of every object store failure.
	ErrStore    = errors.New("object store error")
	ErrUpload   = fmt.Errorf("%w: upload", ErrStore)
	ErrDownload = fmt.Errorf("%w: download", ErrStore)
	ErrNotFound = fmt.Errorf("%w: object not found", ErrStore)
)

// KeyPolicy generates storage keys for new objects.
type KeyPolicy interface {
	Key(ext string) string
}

// UUIDKeys produces keys shaped {uuid}.{ext}.
type UUIDKeys struct{}

func (UUIDKeys) Key(ext string) string {
	if ext == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + ext
}
