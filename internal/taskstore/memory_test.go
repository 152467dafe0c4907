package taskstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_CreateRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := domain.NewTask("abc.mp3", 2)
	created, err := s.Create(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, created.Status)

	got, err := s.Read(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc.mp3", got.SourceRef)
	assert.Equal(t, 2, got.SpeakerCount)
	assert.Nil(t, got.ResultRef)

	_, err = s.Create(ctx, task)
	assert.ErrorIs(t, err, ErrCreation)
}

func TestMemoryStore_ReadMissing(t *testing.T) {
	_, err := NewMemoryStore().Read(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CreateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Create(ctx, domain.NewTask("a.mp3", 0))
	assert.ErrorIs(t, err, ErrCreation)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task, err := s.Create(ctx, domain.NewTask("abc.mp3", 0))
	require.NoError(t, err)

	done := domain.StatusDone
	updated, err := s.Update(ctx, task.ID, Fields{Status: &done, ResultRef: strPtr("x.docx")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, updated.Status)
	require.NotNil(t, updated.ResultRef)
	assert.Equal(t, "x.docx", *updated.ResultRef)

	other, err := s.Create(ctx, domain.NewTask("b.mp3", 0))
	require.NoError(t, err)
	_, err = s.Update(ctx, other.ID, Fields{Status: &done})
	assert.ErrorIs(t, err, ErrUpdate)

	_, err = s.Update(ctx, uuid.New(), Fields{Status: &done})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task, err := s.Create(ctx, domain.NewTask("abc.mp3", 0))
	require.NoError(t, err)

	ok, err := s.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ClaimFinish(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task, err := s.Create(ctx, domain.NewTask("abc.mp3", 0))
	require.NoError(t, err)

	_, err = s.Finish(ctx, task.ID, Result{Status: domain.StatusError, Error: "early"})
	assert.ErrorIs(t, err, ErrConflict)

	claimed, err := s.Claim(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, claimed.Status)

	_, err = s.Claim(ctx, task.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Finish(ctx, task.ID, Result{Status: domain.StatusDone})
	assert.ErrorIs(t, err, ErrUpdate, "DONE without a result ref is rejected")

	finished, err := s.Finish(ctx, task.ID, Result{Status: domain.StatusDone, ResultRef: strPtr("doc.docx")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, finished.Status)
	assert.True(t, finished.Consistent())

	_, err = s.Finish(ctx, task.ID, Result{Status: domain.StatusError, Error: "late"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Claim(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TransitionsFollowLifecycle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		from       domain.Status
		resultRef  *string
		wantClaim  bool
		wantFinish bool
	}{
		{name: "new", from: domain.StatusNew, wantClaim: true},
		{name: "running", from: domain.StatusRunning, wantFinish: true},
		{name: "done", from: domain.StatusDone, resultRef: strPtr("doc.docx")},
		{name: "error", from: domain.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			task, err := s.Create(ctx, domain.NewTask("abc.mp3", 0))
			require.NoError(t, err)
			from := tt.from
			_, err = s.Update(ctx, task.ID, Fields{Status: &from, ResultRef: tt.resultRef})
			require.NoError(t, err)

			_, err = s.Claim(ctx, task.ID)
			if tt.wantClaim {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}

			s2 := NewMemoryStore()
			other, err := s2.Create(ctx, domain.NewTask("abc.mp3", 0))
			require.NoError(t, err)
			_, err = s2.Update(ctx, other.ID, Fields{Status: &from, ResultRef: tt.resultRef})
			require.NoError(t, err)

			_, err = s2.Finish(ctx, other.ID, Result{Status: domain.StatusError, Error: "boom"})
			if tt.wantFinish {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		})
	}
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task, err := s.Create(ctx, domain.NewTask("abc.mp3", 0))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Claim(ctx, task.ID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_FailStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	stale, err := s.Create(ctx, domain.NewTask("old.mp3", 0))
	require.NoError(t, err)
	_, err = s.Claim(ctx, stale.ID)
	require.NoError(t, err)

	fresh, err := s.Create(ctx, domain.NewTask("new.mp3", 0))
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Hour) }
	_, err = s.Claim(ctx, fresh.ID)
	require.NoError(t, err)

	n, err := s.FailStale(ctx, base.Add(30*time.Minute), "worker lost")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Read(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, "worker lost", got.Error)

	got, err = s.Read(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
}
