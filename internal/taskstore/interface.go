package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// TaskStore is the durable record of task identity, status and result pointer.
type TaskStore interface {
	Create(ctx context.Context, task domain.Task) (domain.Task, error)
	Read(ctx context.Context, id uuid.UUID) (domain.Task, error)
	Update(ctx context.Context, id uuid.UUID, fields Fields) (domain.Task, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// Claim moves a NEW task to RUNNING in one atomic step.
	// Returns ErrConflict when the task is not NEW.
	Claim(ctx context.Context, id uuid.UUID) (domain.Task, error)
	// Finish moves a RUNNING task to DONE or ERROR in one atomic step.
	Finish(ctx context.Context, id uuid.UUID, result Result) (domain.Task, error)
	// FailStale moves RUNNING tasks not updated since before to ERROR.
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
}

// Fields lists the columns an Update may change. Nil means unchanged.
type Fields struct {
	SourceRef    *string
	SpeakerCount *int
	Status       *domain.Status
	ResultRef    *string
	Error        *string
}

// Result is the terminal outcome written by Finish.
type Result struct {
	Status    domain.Status
	ResultRef *string
	Error     string
}

var (
	ErrNotFound = errors.New("task not found")
	ErrConflict = errors.New("task status conflict")
	ErrCreation = errors.New("task creation failed")
	ErrRead     = errors.New("task read failed")
	ErrUpdate   = errors.New("task update failed")
	ErrDelete   = errors.New("task delete failed")
)

func validResult(r Result) bool {
	switch r.Status {
	case domain.StatusDone:
		return r.ResultRef != nil && *r.ResultRef != ""
	case domain.StatusError:
		return r.ResultRef == nil
	default:
		return false
	}
}
