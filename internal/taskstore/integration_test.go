package taskstore

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/postgres/postgrestest"
)

var testPool *pgxpool.Pool

// TestMain starts a Postgres container when PROTOCOL_INTEGRATION is set.
func TestMain(m *testing.M) {
	if !postgrestest.Enabled() {
		os.Exit(m.Run())
	}

	pool, cleanup, err := postgrestest.Start(context.Background())
	if err != nil {
		log.Fatalf("Failed to start Postgres: %v", err)
	}
	testPool = pool

	code := m.Run()
	cleanup()
	os.Exit(code)
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip("set PROTOCOL_INTEGRATION=1 to run Postgres tests")
	}
	return testPool
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()
	s := NewPostgresStore(pool)

	task, err := s.Create(ctx, domain.NewTask("abc.mp3", 3))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, task.Status)

	claimed, err := s.Claim(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, claimed.Status)

	_, err = s.Claim(ctx, task.ID)
	assert.ErrorIs(t, err, ErrConflict)

	ref := "result.docx"
	done, err := s.Finish(ctx, task.ID, Result{Status: domain.StatusDone, ResultRef: &ref})
	require.NoError(t, err)
	require.NotNil(t, done.ResultRef)
	assert.Equal(t, ref, *done.ResultRef)

	read, err := s.Read(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, read.Status)
	assert.Equal(t, 3, read.SpeakerCount)

	ok, err := s.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Read(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_FailStale(t *testing.T) {
	pool := requirePool(t)
	ctx := context.Background()
	s := NewPostgresStore(pool)

	task, err := s.Create(ctx, domain.NewTask("stale.mp3", 0))
	require.NoError(t, err)
	_, err = s.Claim(ctx, task.ID)
	require.NoError(t, err)

	n, err := s.FailStale(ctx, time.Now().Add(time.Minute), "lease expired")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err := s.Read(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Nil(t, got.ResultRef)
}
