package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentantai21042004/protocol-flow/internal/document"
	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
	"github.com/nguyentantai21042004/protocol-flow/internal/queue"
	"github.com/nguyentantai21042004/protocol-flow/internal/storage"
	"github.com/nguyentantai21042004/protocol-flow/internal/summarizer"
	"github.com/nguyentantai21042004/protocol-flow/internal/taskstore"
	"github.com/nguyentantai21042004/protocol-flow/internal/transcriber"
)

func intPtr(i int) *int { return &i }

type fakeTranscriber struct {
	calls    atomic.Int32
	segments []domain.TranscriptSegment
	err      error
	block    bool
	gotFmt   string
	gotSpk   int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format string, speakers int) ([]domain.TranscriptSegment, error) {
	f.calls.Add(1)
	f.gotFmt, f.gotSpk = format, speakers
	if f.block {
		<-ctx.Done()
		return nil, &transcriber.Error{Op: "poll", Err: ctx.Err()}
	}
	return f.segments, f.err
}

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return user, nil
}

type recordingBuilder struct {
	markup string
	err    error
	panics bool
}

func (b *recordingBuilder) Build(markup string) (domain.GeneratedDocument, error) {
	if b.panics {
		panic("renderer exploded")
	}
	b.markup = markup
	if b.err != nil {
		return domain.GeneratedDocument{}, b.err
	}
	return domain.GeneratedDocument{ID: uuid.New(), FileName: "x.docx", Data: []byte("docx:" + markup)}, nil
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(ctx context.Context, msg domain.Message) error { return p.err }

type fixedKeys string

func (k fixedKeys) Key(ext string) string { return string(k) }

// finishFailStore fails every DONE write.
type finishFailStore struct {
	*taskstore.MemoryStore
}

func (s finishFailStore) Finish(ctx context.Context, id uuid.UUID, r taskstore.Result) (domain.Task, error) {
	if r.Status == domain.StatusDone {
		return domain.Task{}, errors.New("database unavailable")
	}
	return s.MemoryStore.Finish(ctx, id, r)
}

type fixture struct {
	tasks   *taskstore.MemoryStore
	objects *storage.MemoryStore
	queue   *queue.MemoryQueue
	trans   *fakeTranscriber
	builder *recordingBuilder
	proc    Processor
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		tasks:   taskstore.NewMemoryStore(),
		objects: storage.NewMemoryStore(),
		queue:   queue.NewMemoryQueue(8, 0, 1),
		trans: &fakeTranscriber{segments: []domain.TranscriptSegment{
			{Text: "Hello", SpeakerID: intPtr(1), Emotion: domain.EmotionNeutral},
			{Text: "Hi", SpeakerID: intPtr(2), Emotion: domain.EmotionPositive},
		}},
		builder: &recordingBuilder{},
	}
	t.Cleanup(f.queue.Close)

	deps := Deps{
		Tasks:        f.tasks,
		Objects:      f.objects,
		Publisher:    f.queue,
		Transcriber:  f.trans,
		Summarizer:   summarizer.New(echoGenerator{}, logger.NewNop()),
		Builder:      f.builder,
		TaskDeadline: time.Minute,
		Logger:       logger.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.proc = New(deps)

	require.NoError(t, f.objects.Put(context.Background(), domain.AudioBucket, "abc.mp3", []byte("audio")))
	return f
}

func (f *fixture) createAndReceive(t *testing.T) domain.Task {
	t.Helper()
	task, err := f.proc.Create(context.Background(), "abc.mp3", 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := f.queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, d.Message().TaskID)
	assert.Equal(t, "abc.mp3", d.Message().SourceRef)
	return task
}

func TestProcess_EndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	task := f.createAndReceive(t)
	assert.Equal(t, domain.StatusNew, task.Status)

	require.NoError(t, f.proc.Process(context.Background(), task.ID))

	assert.Equal(t, "speaker_id: 1, text: Hello, emotion: neutral\n\nspeaker_id: 2, text: Hi, emotion: positive", f.builder.markup)
	assert.Equal(t, "mp3", f.trans.gotFmt)
	assert.Equal(t, 2, f.trans.gotSpk)

	got, err := f.proc.GetStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	require.NotNil(t, got.ResultRef)
	assert.True(t, got.Consistent())

	data, err := f.proc.Download(context.Background(), *got.ResultRef)
	require.NoError(t, err)
	assert.Equal(t, "docx:"+f.builder.markup, string(data))
}

func TestProcess_EndToEndWithRealDocument(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Builder = document.New()
		d.Keys = fixedKeys("protocol.docx")
	})
	task := f.createAndReceive(t)

	require.NoError(t, f.proc.Process(context.Background(), task.ID))

	got, err := f.proc.GetStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	require.NotNil(t, got.ResultRef)
	assert.Equal(t, "protocol.docx", *got.ResultRef)

	data, err := f.objects.Get(context.Background(), domain.DocumentsBucket, "protocol.docx")
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))
}

func TestProcess_RedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	task := f.createAndReceive(t)

	require.NoError(t, f.proc.Process(context.Background(), task.ID))
	require.NoError(t, f.proc.Process(context.Background(), task.ID))

	assert.Equal(t, int32(1), f.trans.calls.Load())
}

func TestProcess_ConcurrentDeliveriesRunOnce(t *testing.T) {
	f := newFixture(t, nil)
	task := f.createAndReceive(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.proc.Process(context.Background(), task.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.trans.calls.Load())
	got, err := f.tasks.Read(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
}

func TestProcess_UnknownTaskIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.proc.Process(context.Background(), uuid.New()))
	assert.Equal(t, int32(0), f.trans.calls.Load())
}

func TestProcess_FailuresEndInError(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantKind Kind
	}{
		{
			name: "transcription",
			setup: func(f *fixture) {
				f.trans.err = &transcriber.Error{Op: "upload", Err: transcriber.ErrUpload}
			},
			wantKind: KindTranscription,
		},
		{
			name: "recognition poll timeout",
			setup: func(f *fixture) {
				f.trans.err = &transcriber.Error{Op: "poll", Err: fmt.Errorf("%w: still RUNNING after 5 polls", transcriber.ErrTaskTimeout)}
			},
			wantKind: KindTimeout,
		},
		{
			name:     "document",
			setup:    func(f *fixture) { f.builder.err = document.ErrDocument },
			wantKind: KindDocument,
		},
		{
			name: "missing audio",
			setup: func(f *fixture) {
				require.NoError(t, f.objects.Delete(context.Background(), domain.AudioBucket, "abc.mp3"))
			},
			wantKind: KindStorage,
		},
		{
			name:     "empty generation",
			setup:    func(f *fixture) { f.trans.segments = nil },
			wantKind: KindGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			task := f.createAndReceive(t)
			tt.setup(f)

			err := f.proc.Process(context.Background(), task.ID)
			var taskErr *TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, tt.wantKind, taskErr.Kind)

			got, err := f.tasks.Read(context.Background(), task.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusError, got.Status)
			assert.Nil(t, got.ResultRef)
			assert.Contains(t, got.Error, tt.wantKind.String())
		})
	}
}

func TestProcess_DeadlineMapsToTimeout(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.TaskDeadline = 20 * time.Millisecond })
	f.trans.block = true
	task := f.createAndReceive(t)

	err := f.proc.Process(context.Background(), task.ID)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, KindTimeout, taskErr.Kind)

	got, err := f.tasks.Read(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
}

func TestProcess_PanicStillRecordsError(t *testing.T) {
	f := newFixture(t, nil)
	f.builder.panics = true
	task := f.createAndReceive(t)

	assert.Panics(t, func() {
		_ = f.proc.Process(context.Background(), task.ID)
	})

	got, err := f.tasks.Read(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Contains(t, got.Error, "renderer exploded")
}

func TestProcess_FailedDoneWriteRemovesDocument(t *testing.T) {
	f := newFixture(t, nil)
	store := finishFailStore{MemoryStore: f.tasks}
	f.proc = New(Deps{
		Tasks:       store,
		Objects:     f.objects,
		Publisher:   f.queue,
		Transcriber: f.trans,
		Summarizer:  summarizer.New(echoGenerator{}, logger.NewNop()),
		Builder:     f.builder,
		Keys:        fixedKeys("orphan.docx"),
		Logger:      logger.NewNop(),
	})
	task := f.createAndReceive(t)

	err := f.proc.Process(context.Background(), task.ID)
	require.Error(t, err)

	_, err = f.objects.Get(context.Background(), domain.DocumentsBucket, "orphan.docx")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := f.tasks.Read(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Nil(t, got.ResultRef)
}

func TestCreate_PersistenceFailurePublishesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.proc.Create(ctx, "abc.mp3", 2)
	assert.ErrorIs(t, err, ErrCreation)
	assert.Equal(t, 0, f.queue.Len())
}

func TestCreate_PublishFailureMarksError(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Publisher = failingPublisher{err: queue.ErrPublish} })

	_, err := f.proc.Create(context.Background(), "abc.mp3", 2)
	assert.ErrorIs(t, err, queue.ErrPublish)

	n, err := f.tasks.FailStale(context.Background(), time.Now().Add(time.Hour), "unused")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "no task is left RUNNING")
}

func TestGetStatus_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.proc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_NotReady(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.proc.Download(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&transcriber.Error{Op: "poll", Err: transcriber.ErrTaskFailed}, KindTranscription},
		{&transcriber.Error{Op: "poll", Err: fmt.Errorf("%w: still RUNNING after 5 polls", transcriber.ErrTaskTimeout)}, KindTimeout},
		{&transcriber.Error{Op: "poll", Err: context.DeadlineExceeded}, KindTimeout},
		{summarizer.ErrGeneration, KindGeneration},
		{document.ErrDocument, KindDocument},
		{storage.ErrUpload, KindStorage},
		{errors.New("other"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
