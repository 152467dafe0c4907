package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// DefaultSpeakerCount is used when the submitter gives no hint.
const DefaultSpeakerCount = 6

// Task tracks one audio-to-protocol conversion.
type Task struct {
	ID           uuid.UUID `json:"id"`
	SourceRef    string    `json:"source_ref"`
	SpeakerCount int       `json:"speaker_count"`
	Status       Status    `json:"status"`
	ResultRef    *string   `json:"result_ref,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewTask returns a task in NEW state for the given audio key.
func NewTask(sourceRef string, speakers int) Task {
	if speakers <= 0 {
		speakers = DefaultSpeakerCount
	}
	now := time.Now().UTC()
	return Task{
		ID:           uuid.New(),
		SourceRef:    sourceRef,
		SpeakerCount: speakers,
		Status:       StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusRunning, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition enforces NEW -> RUNNING -> {DONE, ERROR}.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusNew:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusDone || to == StatusError
	default:
		return false
	}
}

// Consistent checks the result invariant: a result pointer exists iff the task is DONE.
func (t Task) Consistent() bool {
	if t.Status == StatusDone {
		return t.ResultRef != nil && *t.ResultRef != ""
	}
	return t.ResultRef == nil
}
