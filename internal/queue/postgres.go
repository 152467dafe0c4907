package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Querier is the subset of pgxpool.Pool the queue needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig tunes leasing and redelivery.
type PostgresConfig struct {
	Channel      string
	PollInterval time.Duration
	Lease        time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
}

const messagesTable = "dispatch_messages"

// PostgresQueue stores messages in dispatch_messages and leases them with
// FOR UPDATE SKIP LOCKED so concurrent consumers never share a message.
type PostgresQueue struct {
	db  Querier
	cfg PostgresConfig
	psq sq.StatementBuilderType
}

func NewPostgresQueue(db Querier, cfg PostgresConfig) *PostgresQueue {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 45 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &PostgresQueue{
		db:  db,
		cfg: cfg,
		psq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (q *PostgresQueue) Publish(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPublish, err)
	}

	query, args, err := q.psq.Insert(messagesTable).
		Columns("channel", "payload").
		Values(q.cfg.Channel, string(payload)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %v", ErrPublish, err)
	}

	if _, err := q.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

func (q *PostgresQueue) Receive(ctx context.Context) (Delivery, error) {
	for {
		d, err := q.lease(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// lease claims the oldest visible message, or returns nil when there is none.
func (q *PostgresQueue) lease(ctx context.Context) (Delivery, error) {
	query, args, err := q.psq.Update(messagesTable).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("visible_at", sq.Expr("NOW() + (?::float8 * INTERVAL '1 second')", q.cfg.Lease.Seconds())).
		Where(sq.Expr(
			"id = (SELECT id FROM "+messagesTable+
				" WHERE channel = ? AND visible_at <= NOW() ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED)",
			q.cfg.Channel,
		)).
		Suffix("RETURNING id, payload, attempts").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build lease: %v", ErrReceive, err)
	}

	var (
		id       int64
		payload  []byte
		attempts int
	)
	err = q.db.QueryRow(ctx, query, args...).Scan(&id, &payload, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		// Undecodable payloads can never succeed.
		_ = q.delete(ctx, id)
		return nil, fmt.Errorf("%w: decode message %d: %v", ErrReceive, id, err)
	}

	return &postgresDelivery{queue: q, id: id, msg: msg, attempts: attempts}, nil
}

func (q *PostgresQueue) delete(ctx context.Context, id int64) error {
	query, args, err := q.psq.Delete(messagesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build delete: %v", ErrAck, err)
	}
	if _, err := q.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrAck, err)
	}
	return nil
}

func (q *PostgresQueue) postpone(ctx context.Context, id int64) error {
	query, args, err := q.psq.Update(messagesTable).
		Set("visible_at", sq.Expr("NOW() + (?::float8 * INTERVAL '1 second')", q.cfg.RetryDelay.Seconds())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build postpone: %v", ErrAck, err)
	}
	if _, err := q.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrAck, err)
	}
	return nil
}

type postgresDelivery struct {
	queue    *PostgresQueue
	id       int64
	msg      domain.Message
	attempts int
}

func (d *postgresDelivery) Message() domain.Message { return d.msg }
func (d *postgresDelivery) Attempt() int            { return d.attempts }

func (d *postgresDelivery) Ack(ctx context.Context) error {
	return d.queue.delete(ctx, d.id)
}

func (d *postgresDelivery) Nack(ctx context.Context) error {
	if d.attempts >= d.queue.cfg.MaxAttempts {
		return d.queue.delete(ctx, d.id)
	}
	return d.queue.postpone(ctx, d.id)
}
