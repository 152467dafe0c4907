package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/document"
	"github.com/nguyentantai21042004/protocol-flow/internal/storage"
	"github.com/nguyentantai21042004/protocol-flow/internal/summarizer"
	"github.com/nguyentantai21042004/protocol-flow/internal/taskstore"
	"github.com/nguyentantai21042004/protocol-flow/internal/transcriber"
)

var (
	ErrCreation = errors.New("task creation failed")
	ErrNotFound = taskstore.ErrNotFound
	ErrNotReady = errors.New("task has no result yet")
	errInternal = errors.New("internal error")
)

// Kind classifies why a task ended in ERROR.
type Kind int

const (
	KindInternal Kind = iota
	KindTranscription
	KindGeneration
	KindDocument
	KindStorage
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTranscription:
		return "transcription"
	case KindGeneration:
		return "generation"
	case KindDocument:
		return "document"
	case KindStorage:
		return "storage"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// classify maps a component error to its Kind. Deadline expiry and the
// recognition poll timeout win over whichever step happened to be running.
func classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, transcriber.ErrTaskTimeout):
		return KindTimeout
	case errors.Is(err, transcriber.ErrTranscription):
		return KindTranscription
	case errors.Is(err, summarizer.ErrGeneration):
		return KindGeneration
	case errors.Is(err, document.ErrDocument):
		return KindDocument
	case errors.Is(err, storage.ErrStore):
		return KindStorage
	default:
		return KindInternal
	}
}

// TaskError reports a pipeline failure that was recorded on the task.
// The task is terminal, so the message carrying it can be acknowledged.
type TaskError struct {
	TaskID uuid.UUID
	Kind   Kind
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed (%s): %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
