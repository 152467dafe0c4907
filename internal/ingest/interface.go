package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Service accepts recordings and turns them into queued tasks.
type Service interface {
	// Ingest validates and stores the audio, then creates a task for it.
	// Unsupported formats are rejected before anything is stored.
	Ingest(ctx context.Context, fileName string, data []byte, speakers int) (domain.Task, error)
}

// TaskCreator is the part of the orchestrator ingestion needs.
type TaskCreator interface {
	Create(ctx context.Context, sourceRef string, speakers int) (domain.Task, error)
}

// Prober measures the duration of a recording.
type Prober interface {
	Duration(ctx context.Context, data []byte) (time.Duration, error)
}

var (
	ErrInvalidRequest = errors.New("invalid ingest request")
	ErrStoreAudio     = errors.New("store audio failed")
)
