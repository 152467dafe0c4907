package taskstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// MemoryStore keeps tasks in a map guarded by a mutex.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]domain.Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]domain.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, task domain.Task) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrCreation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return domain.Task{}, fmt.Errorf("%w: duplicate id %s", ErrCreation, task.ID)
	}
	now := s.now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = task
	return task, nil
}

func (s *MemoryStore) Read(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, fields Fields) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if fields.SourceRef != nil {
		task.SourceRef = *fields.SourceRef
	}
	if fields.SpeakerCount != nil {
		task.SpeakerCount = *fields.SpeakerCount
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.ResultRef != nil {
		ref := *fields.ResultRef
		task.ResultRef = &ref
	}
	if fields.Error != nil {
		task.Error = *fields.Error
	}
	if !task.Consistent() {
		return domain.Task{}, fmt.Errorf("%w: result_ref must be set iff status is DONE", ErrUpdate)
	}
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return task, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !domain.CanTransition(task.Status, domain.StatusRunning) {
		return task, fmt.Errorf("%w: task %s is %s", ErrConflict, id, task.Status)
	}
	task.Status = domain.StatusRunning
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return task, nil
}

func (s *MemoryStore) Finish(ctx context.Context, id uuid.UUID, result Result) (domain.Task, error) {
	if !validResult(result) {
		return domain.Task{}, fmt.Errorf("%w: invalid terminal result %s", ErrUpdate, result.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !domain.CanTransition(task.Status, result.Status) {
		return task, fmt.Errorf("%w: task %s is %s", ErrConflict, id, task.Status)
	}
	task.Status = result.Status
	task.ResultRef = result.ResultRef
	task.Error = result.Error
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return task, nil
}

func (s *MemoryStore) FailStale(ctx context.Context, before time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, task := range s.tasks {
		if task.Status == domain.StatusRunning && task.UpdatedAt.Before(before) {
			task.Status = domain.StatusError
			task.ResultRef = nil
			task.Error = reason
			task.UpdatedAt = s.now()
			s.tasks[id] = task
			n++
		}
	}
	return n, nil
}
