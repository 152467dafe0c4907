package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/taskstore"
)

// Create persists the task before publishing so a consumer never sees an
// unknown id. A publish failure marks the task ERROR.
func (p *implProcessor) Create(ctx context.Context, sourceRef string, speakers int) (domain.Task, error) {
	task, err := p.tasks.Create(ctx, domain.NewTask(sourceRef, speakers))
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %w", ErrCreation, err)
	}

	msg := domain.Message{TaskID: task.ID, SourceRef: task.SourceRef}
	if err := p.publisher.Publish(ctx, msg); err != nil {
		p.logger.Error(ctx, "Failed to publish task %s: %v", task.ID, err)
		p.abandon(ctx, task.ID, "dispatch: "+err.Error())
		return domain.Task{}, fmt.Errorf("publish task %s: %w", task.ID, err)
	}

	p.logger.Info(ctx, "Created task %s for %s (%d speakers)", task.ID, task.SourceRef, task.SpeakerCount)
	return task, nil
}

// abandon moves an unpublished task to ERROR through the regular transitions.
func (p *implProcessor) abandon(ctx context.Context, id uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if _, err := p.tasks.Claim(ctx, id); err != nil {
		p.logger.Error(ctx, "Failed to mark unpublished task %s: %v", id, err)
		return
	}
	if _, err := p.tasks.Finish(ctx, id, taskstore.Result{Status: domain.StatusError, Error: reason}); err != nil {
		p.logger.Error(ctx, "Failed to mark unpublished task %s: %v", id, err)
	}
}

// Process claims the task, runs the pipeline under the task deadline and
// records exactly one terminal status. Any exit without a DONE write,
// panics included, records ERROR.
func (p *implProcessor) Process(ctx context.Context, taskID uuid.UUID) (err error) {
	task, err := p.tasks.Claim(ctx, taskID)
	switch {
	case errors.Is(err, taskstore.ErrConflict):
		p.logger.Warn(ctx, "Task %s already %s, skipping redelivery", taskID, task.Status)
		return nil
	case errors.Is(err, taskstore.ErrNotFound):
		p.logger.Warn(ctx, "Task %s no longer exists, skipping", taskID)
		return nil
	case err != nil:
		return fmt.Errorf("claim task %s: %w", taskID, err)
	}

	startTime := time.Now()
	p.logger.Info(ctx, "Starting task %s: %s", taskID, task.SourceRef)

	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		cause := err
		if r != nil {
			cause = fmt.Errorf("%w: panic: %v", errInternal, r)
		}
		if cause == nil {
			cause = fmt.Errorf("%w: pipeline ended without result", errInternal)
		}
		err = p.fail(ctx, taskID, cause)
		if r != nil {
			panic(r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	ref, err := p.run(runCtx, task)
	if err != nil {
		return err
	}

	if err = p.complete(ctx, taskID, ref); err != nil {
		return err
	}
	done = true

	p.logger.Info(ctx, "Task %s done in %s: %s", taskID, time.Since(startTime).Round(time.Millisecond), ref)
	return nil
}

// run executes the strictly sequential pipeline and returns the stored document key.
func (p *implProcessor) run(ctx context.Context, task domain.Task) (string, error) {
	audio, err := p.objects.Get(ctx, domain.AudioBucket, task.SourceRef)
	if err != nil {
		return "", fmt.Errorf("get audio: %w", err)
	}

	segments, err := p.transcriber.Transcribe(ctx, audio, domain.FormatFromKey(task.SourceRef), task.SpeakerCount)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	p.logger.Debug(ctx, "Task %s: %d transcript segments", task.ID, len(segments))

	markup, err := p.summarizer.Summarize(ctx, segments, p.prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	doc, err := p.builder.Build(markup)
	if err != nil {
		return "", fmt.Errorf("build document: %w", err)
	}

	key := p.keys.Key(domain.DocumentExtension)
	if err := p.objects.Put(ctx, domain.DocumentsBucket, key, doc.Data); err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	return key, nil
}

// complete writes DONE. When that fails the stored document is removed so
// no task ever points at an orphan.
func (p *implProcessor) complete(ctx context.Context, id uuid.UUID, key string) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	ref := key
	if _, err := p.tasks.Finish(fctx, id, taskstore.Result{Status: domain.StatusDone, ResultRef: &ref}); err != nil {
		if derr := p.objects.Delete(fctx, domain.DocumentsBucket, key); derr != nil {
			p.logger.Warn(ctx, "Failed to remove document %s after failed finalize: %v", key, derr)
		}
		return fmt.Errorf("finalize task %s: %w", id, err)
	}
	return nil
}

// fail records ERROR. It returns a TaskError when the write succeeded and
// the write failure otherwise.
func (p *implProcessor) fail(ctx context.Context, id uuid.UUID, cause error) error {
	kind := classify(cause)
	p.logger.Error(ctx, "Task %s failed (%s): %v", id, kind, cause)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	msg := kind.String() + ": " + cause.Error()
	if _, err := p.tasks.Finish(fctx, id, taskstore.Result{Status: domain.StatusError, Error: msg}); err != nil {
		p.logger.Error(ctx, "Failed to record failure of task %s: %v", id, err)
		return fmt.Errorf("record failure of task %s: %w (cause: %v)", id, err, cause)
	}
	return &TaskError{TaskID: id, Kind: kind, Err: cause}
}

func (p *implProcessor) GetStatus(ctx context.Context, taskID uuid.UUID) (domain.Task, error) {
	task, err := p.tasks.Read(ctx, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

func (p *implProcessor) Download(ctx context.Context, resultRef string) ([]byte, error) {
	if resultRef == "" {
		return nil, ErrNotReady
	}
	data, err := p.objects.Get(ctx, domain.DocumentsBucket, resultRef)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", resultRef, err)
	}
	return data, nil
}
