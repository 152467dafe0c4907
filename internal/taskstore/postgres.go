package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Querier is the subset of pgxpool.Pool and pgx.Tx the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tasksTable = "tasks"

var taskColumns = []string{
	"id", "source_ref", "speaker_count", "status", "result_ref", "error", "created_at", "updated_at",
}

// PostgresStore persists tasks in the tasks table.
// Every status transition is a single conditional UPDATE.
type PostgresStore struct {
	db  Querier
	psq sq.StatementBuilderType
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{
		db:  db,
		psq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) Create(ctx context.Context, task domain.Task) (domain.Task, error) {
	query, args, err := s.psq.Insert(tasksTable).
		Columns("id", "source_ref", "speaker_count", "status", "result_ref", "error").
		Values(task.ID.String(), task.SourceRef, task.SpeakerCount, string(task.Status), task.ResultRef, task.Error).
		Suffix(returning()).
		ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: build insert: %v", ErrCreation, err)
	}

	created, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrCreation, err)
	}
	return created, nil
}

func (s *PostgresStore) Read(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	query, args, err := s.psq.Select(taskColumns...).
		From(tasksTable).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: build select: %v", ErrRead, err)
	}

	task, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return task, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fields Fields) (domain.Task, error) {
	update := s.psq.Update(tasksTable).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id.String()})
	if fields.SourceRef != nil {
		update = update.Set("source_ref", *fields.SourceRef)
	}
	if fields.SpeakerCount != nil {
		update = update.Set("speaker_count", *fields.SpeakerCount)
	}
	if fields.Status != nil {
		update = update.Set("status", string(*fields.Status))
	}
	if fields.ResultRef != nil {
		update = update.Set("result_ref", *fields.ResultRef)
	}
	if fields.Error != nil {
		update = update.Set("error", *fields.Error)
	}

	query, args, err := update.Suffix(returning()).ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: build update: %v", ErrUpdate, err)
	}

	task, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	return task, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := s.psq.Delete(tasksTable).Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build delete: %v", ErrDelete, err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDelete, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Claim(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	query, args, err := s.psq.Update(tasksTable).
		Set("status", string(domain.StatusRunning)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id.String(), "status": string(domain.StatusNew)}).
		Suffix(returning()).
		ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: build claim: %v", ErrUpdate, err)
	}

	task, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.conflict(ctx, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	return task, nil
}

func (s *PostgresStore) Finish(ctx context.Context, id uuid.UUID, result Result) (domain.Task, error) {
	if !validResult(result) {
		return domain.Task{}, fmt.Errorf("%w: invalid terminal result %s", ErrUpdate, result.Status)
	}

	query, args, err := s.psq.Update(tasksTable).
		Set("status", string(result.Status)).
		Set("result_ref", result.ResultRef).
		Set("error", result.Error).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id.String(), "status": string(domain.StatusRunning)}).
		Suffix(returning()).
		ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: build finish: %v", ErrUpdate, err)
	}

	task, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.conflict(ctx, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	return task, nil
}

func (s *PostgresStore) FailStale(ctx context.Context, before time.Time, reason string) (int64, error) {
	query, args, err := s.psq.Update(tasksTable).
		Set("status", string(domain.StatusError)).
		Set("result_ref", nil).
		Set("error", reason).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"status": string(domain.StatusRunning)}).
		Where(sq.Lt{"updated_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build reap: %v", ErrUpdate, err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	return tag.RowsAffected(), nil
}

// conflict tells a missing row apart from a row in the wrong state.
func (s *PostgresStore) conflict(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	task, err := s.Read(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	return task, fmt.Errorf("%w: task %s is %s", ErrConflict, id, task.Status)
}

func returning() string {
	cols := "RETURNING "
	for i, c := range taskColumns {
		if i > 0 {
			cols += ", "
		}
		cols += c
	}
	return cols
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		task   domain.Task
		id     pgtype.UUID
		status string
	)
	err := row.Scan(
		&id,
		&task.SourceRef,
		&task.SpeakerCount,
		&status,
		&task.ResultRef,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	task.ID = uuid.UUID(id.Bytes)
	task.Status = domain.Status(status)
	return task, nil
}
