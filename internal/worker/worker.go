package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/processor"
	"github.com/nguyentantai21042004/protocol-flow/internal/queue"
)

func (w *implWorker) Run(ctx context.Context) error {
	w.logger.Info(ctx, "Worker started (max concurrent: %d)", w.opts.MaxConcurrent)

	// In-flight tasks outlive ctx so shutdown does not fail them midway.
	procCtx, cancelProc := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProc()

	var wg sync.WaitGroup
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			break
		}

		d, err := w.consumer.Receive(ctx)
		if err != nil {
			w.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			w.logger.Error(ctx, "Receive failed: %v", err)
			select {
			case <-time.After(w.opts.ReceiveDelay):
			case <-ctx.Done():
			}
			continue
		}

		wg.Add(1)
		go func(d queue.Delivery) {
			defer wg.Done()
			defer w.sem.Release(1)
			w.handle(procCtx, d)
		}(d)
	}

	w.drain(ctx, &wg, cancelProc)
	w.logger.Info(ctx, "Worker stopped")
	return nil
}

// drain waits for in-flight tasks, cancelling them once the grace period ends.
func (w *implWorker) drain(ctx context.Context, wg *sync.WaitGroup, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	w.logger.Info(ctx, "Waiting for ongoing processing to complete...")
	if w.opts.ShutdownGrace <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(w.opts.ShutdownGrace):
		w.logger.Warn(ctx, "Shutdown grace of %s exceeded, cancelling in-flight tasks", w.opts.ShutdownGrace)
		cancel()
		<-done
	}
}

// handle runs one delivery. Terminal outcomes are acknowledged. Anything
// else goes back to the queue.
func (w *implWorker) handle(ctx context.Context, d queue.Delivery) {
	msg := d.Message()
	err := w.process(ctx, msg.TaskID)

	var taskErr *processor.TaskError
	if err == nil || errors.As(err, &taskErr) {
		if aerr := d.Ack(ctx); aerr != nil {
			w.logger.Error(ctx, "Failed to ack task %s: %v", msg.TaskID, aerr)
		}
		return
	}

	w.logger.Warn(ctx, "Task %s attempt %d not finished, returning to queue: %v", msg.TaskID, d.Attempt(), err)
	if nerr := d.Nack(ctx); nerr != nil {
		w.logger.Error(ctx, "Failed to nack task %s: %v", msg.TaskID, nerr)
	}
}

// process converts a panic into an error so one task cannot stop the worker.
func (w *implWorker) process(ctx context.Context, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "Task %s panicked: %v", id, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.handler.Process(ctx, id)
}
