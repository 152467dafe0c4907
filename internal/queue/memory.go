package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// MemoryQueue is an in-process queue backed by a buffered channel.
type MemoryQueue struct {
	ch          chan envelope
	retryDelay  time.Duration
	maxAttempts int

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

type envelope struct {
	msg      domain.Message
	attempts int
}

// NewMemoryQueue creates a queue holding up to size pending messages.
func NewMemoryQueue(size int, retryDelay time.Duration, maxAttempts int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &MemoryQueue{
		ch:          make(chan envelope, size),
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
		timers:      make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, msg domain.Message) error {
	return q.push(ctx, envelope{msg: msg})
}

func (q *MemoryQueue) push(ctx context.Context, env envelope) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %v", ErrPublish, ErrClosed)
	}

	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPublish, ctx.Err())
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	select {
	case env := <-q.ch:
		env.attempts++
		return &memoryDelivery{queue: q, env: env}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of messages waiting to be received.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops pending redeliveries and rejects further publishes.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
}

func (q *MemoryQueue) redeliver(env envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.retryDelay <= 0 {
		go func() { _ = q.push(context.Background(), env) }()
		return
	}

	var t *time.Timer
	t = time.AfterFunc(q.retryDelay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		_ = q.push(context.Background(), env)
	})
	q.timers[t] = struct{}{}
}

type memoryDelivery struct {
	queue *MemoryQueue
	env   envelope
	once  sync.Once
}

func (d *memoryDelivery) Message() domain.Message { return d.env.msg }
func (d *memoryDelivery) Attempt() int            { return d.env.attempts }

func (d *memoryDelivery) Ack(ctx context.Context) error {
	d.once.Do(func() {})
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context) error {
	d.once.Do(func() {
		if d.env.attempts >= d.queue.maxAttempts {
			return
		}
		d.queue.redeliver(d.env)
	})
	return nil
}
