package worker

import (
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
	"github.com/nguyentantai21042004/protocol-flow/internal/queue"
)

const (
	defaultMaxConcurrent = 2
	defaultReceiveDelay  = time.Second
)

// Options tune the consumer loop.
type Options struct {
	// MaxConcurrent bounds parallel task executions.
	MaxConcurrent int
	// ShutdownGrace is how long Run waits for in-flight tasks after ctx is
	// cancelled before cancelling them too. Zero waits indefinitely.
	ShutdownGrace time.Duration
	// ReceiveDelay is the pause after a failed Receive.
	ReceiveDelay time.Duration
}

type implWorker struct {
	consumer queue.Consumer
	handler  Handler
	opts     Options
	sem      *semaphore.Weighted
	logger   logger.Logger
}

// New creates a new Worker instance
func New(consumer queue.Consumer, handler Handler, opts Options, log logger.Logger) Worker {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.ReceiveDelay <= 0 {
		opts.ReceiveDelay = defaultReceiveDelay
	}
	return &implWorker{
		consumer: consumer,
		handler:  handler,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:   log.With("component", "worker"),
	}
}
