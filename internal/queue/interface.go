package queue

import (
	"context"
	"errors"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Publisher emits "task ready" notifications.
type Publisher interface {
	Publish(ctx context.Context, msg domain.Message) error
}

// Consumer hands out leased messages. Receive blocks until a message is
// available or ctx is done.
type Consumer interface {
	Receive(ctx context.Context) (Delivery, error)
}

// Queue is both ends of the dispatch channel.
type Queue interface {
	Publisher
	Consumer
}

// Delivery is one leased message. Exactly one of Ack or Nack should be called.
// A message that is neither acked nor nacked becomes visible again when its lease expires.
type Delivery interface {
	Message() domain.Message
	Attempt() int
	Ack(ctx context.Context) error
	// Nack returns the message for redelivery after the retry delay,
	// or drops it once the attempt budget is spent.
	Nack(ctx context.Context) error
}

// DefaultChannel is the channel name used by the pipeline.
const DefaultChannel = "protocol_tasks"

var (
	ErrPublish = errors.New("publish message failed")
	ErrReceive = errors.New("receive message failed")
	ErrAck     = errors.New("acknowledge message failed")
	ErrClosed  = errors.New("queue closed")
)
