package processor

import (
	"context"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Processor owns the task state machine and is the only writer of task status.
type Processor interface {
	// Create persists a NEW task for already stored audio and announces it.
	Create(ctx context.Context, sourceRef string, speakers int) (domain.Task, error)
	// Process runs the pipeline for a task at most once. Redelivered
	// messages for tasks that already left NEW are no-ops.
	Process(ctx context.Context, taskID uuid.UUID) error
	GetStatus(ctx context.Context, taskID uuid.UUID) (domain.Task, error)
	Download(ctx context.Context, resultRef string) ([]byte, error)
}
