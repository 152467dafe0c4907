package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Worker consumes dispatch messages and runs them through the pipeline.
type Worker interface {
	// Run blocks until ctx is cancelled and in-flight tasks have finished.
	Run(ctx context.Context) error
}

// Handler runs one task. It is satisfied by processor.Processor.
type Handler interface {
	Process(ctx context.Context, taskID uuid.UUID) error
}

// StaleFailer moves abandoned RUNNING tasks to ERROR.
type StaleFailer interface {
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
}
