package processor

import (
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/document"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
	"github.com/nguyentantai21042004/protocol-flow/internal/queue"
	"github.com/nguyentantai21042004/protocol-flow/internal/storage"
	"github.com/nguyentantai21042004/protocol-flow/internal/summarizer"
	"github.com/nguyentantai21042004/protocol-flow/internal/taskstore"
	"github.com/nguyentantai21042004/protocol-flow/internal/transcriber"
)

const (
	defaultTaskDeadline = 30 * time.Minute
	finalizeTimeout     = 30 * time.Second
)

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Tasks       taskstore.TaskStore
	Objects     storage.ObjectStore
	Publisher   queue.Publisher
	Transcriber transcriber.Transcriber
	Summarizer  summarizer.Summarizer
	Builder     document.Builder
	// Keys names stored documents. Defaults to storage.UUIDKeys.
	Keys storage.KeyPolicy
	// Prompt is the system prompt handed to the summarizer.
	Prompt string
	// TaskDeadline bounds one pipeline run.
	TaskDeadline time.Duration
	Logger       logger.Logger
}

type implProcessor struct {
	tasks       taskstore.TaskStore
	objects     storage.ObjectStore
	publisher   queue.Publisher
	transcriber transcriber.Transcriber
	summarizer  summarizer.Summarizer
	builder     document.Builder
	keys        storage.KeyPolicy
	prompt      string
	deadline    time.Duration
	logger      logger.Logger
}

// New creates a new Processor instance
func New(d Deps) Processor {
	if d.Keys == nil {
		d.Keys = storage.UUIDKeys{}
	}
	if d.TaskDeadline <= 0 {
		d.TaskDeadline = defaultTaskDeadline
	}
	if d.Prompt == "" {
		d.Prompt = summarizer.DefaultPrompt
	}
	return &implProcessor{
		tasks:       d.Tasks,
		objects:     d.Objects,
		publisher:   d.Publisher,
		transcriber: d.Transcriber,
		summarizer:  d.Summarizer,
		builder:     d.Builder,
		keys:        d.Keys,
		prompt:      d.Prompt,
		deadline:    d.TaskDeadline,
		logger:      d.Logger.With("component", "processor"),
	}
}
