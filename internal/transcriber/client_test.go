package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// fakeService mimics the recognition REST API.
type fakeService struct {
	runningPolls int
	finalStatus  string

	tokenCalls  atomic.Int32
	polls       atomic.Int32
	uploads     atomic.Int32
	uploadFails []int

	mu         sync.Mutex
	submitted  recognizeRequest
	authHeader string
	rqUID      string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.authHeader = r.Header.Get("Authorization")
		f.rqUID = r.Header.Get("RqUID")
		f.mu.Unlock()
		if r.PostForm.Get("scope") != "SALUTE_SPEECH_PERS" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "token-" + string(rune('0'+n))})
	})
	mux.HandleFunc("/rest/data:upload", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.uploads.Add(1))
		if n <= len(f.uploadFails) {
			w.WriteHeader(f.uploadFails[n-1])
			return
		}
		if r.Header.Get("Content-Type") != "audio/mpeg" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"status":200,"result":{"request_file_id":"file-1"}}`)
	})
	mux.HandleFunc("/rest/speech:async_recognize", func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		f.mu.Lock()
		f.submitted = req
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"status":200,"result":{"id":"task-1","status":"NEW"}}`)
	})
	mux.HandleFunc("/rest/task:get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "task-1", r.URL.Query().Get("id"))
		n := int(f.polls.Add(1))
		status := "RUNNING"
		if n > f.runningPolls && f.finalStatus != "" {
			status = f.finalStatus
		}
		resp := map[string]any{"status": 200, "result": map[string]any{"id": "task-1", "status": status}}
		if status == "DONE" {
			resp["result"].(map[string]any)["response_file_id"] = "resp-1"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/rest/data:download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resp-1", r.URL.Query().Get("response_file_id"))
		_, _ = io.WriteString(w, `[
			{"text":"hello","speaker_id":0,"emotion":"neutral"},
			{"text":"bye","speaker_id":1,"emotion":"positive"}
		]`)
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, clock Clock, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:      srv.URL + "/rest",
		AuthURL:      srv.URL + "/oauth",
		APIKey:       "c2VjcmV0",
		Diarization:  true,
		PollInterval: time.Second,
		PollTimeout:  time.Minute,
		MaxRetries:   3,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, logger.NewNop(),
		WithHTTPClient(srv.Client()),
		WithClock(clock),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	require.NoError(t, err)
	return c
}

func TestTranscribe_PollsUntilDone(t *testing.T) {
	svc := &fakeService{runningPolls: 3, finalStatus: "DONE"}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	segments, err := c.Transcribe(context.Background(), []byte("audio"), "mp3", 12)
	require.NoError(t, err)

	assert.Equal(t, int32(4), svc.polls.Load(), "N running polls then done is N+1 polls")
	assert.Equal(t, int32(1), svc.tokenCalls.Load(), "token is cached")
	require.Len(t, segments, 2)
	assert.Equal(t, "hello", segments[0].Text)
	require.NotNil(t, segments[1].SpeakerID)
	assert.Equal(t, 1, *segments[1].SpeakerID)
	assert.Equal(t, domain.EmotionPositive, segments[1].Emotion)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, "Basic c2VjcmV0", svc.authHeader)
	assert.NotEmpty(t, svc.rqUID)
	opts := svc.submitted.Options
	assert.Equal(t, "MP3", opts.AudioEncoding)
	assert.Equal(t, 16000, opts.SampleRate)
	assert.Equal(t, "ru-RU", opts.Language)
	assert.Equal(t, "general", opts.Model)
	assert.Equal(t, 1, opts.ChannelsCount)
	assert.True(t, opts.SpeakerSeparation.Enable)
	assert.False(t, opts.SpeakerSeparation.EnableOnlyMainSpeaker)
	assert.Equal(t, 10, opts.SpeakerSeparation.Count, "speaker count is capped")
	assert.Equal(t, "file-1", svc.submitted.RequestFileID)
	assert.Nil(t, svc.submitted.Hints)
}

func TestTranscribe_HintWords(t *testing.T) {
	svc := &fakeService{finalStatus: "DONE"}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), func(cfg *Config) {
		cfg.HintWords = []string{"protocol", "agenda"}
	})
	_, err := c.Transcribe(context.Background(), []byte("audio"), "mp3", 2)
	require.NoError(t, err)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.NotNil(t, svc.submitted.Hints)
	assert.Equal(t, []string{"protocol", "agenda"}, svc.submitted.Hints.Words)
	assert.Equal(t, 1, svc.submitted.Hints.EOUTimeout)
	assert.Equal(t, 2, svc.submitted.Options.SpeakerSeparation.Count)
}

func TestPoll_TimesOutWhenNeverTerminal(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), func(cfg *Config) {
		cfg.PollTimeout = 5 * time.Second
	})
	_, err := c.Transcribe(context.Background(), []byte("audio"), "mp3", 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskTimeout)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Equal(t, int32(5), svc.polls.Load())

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "poll", te.Op)
}

func TestPoll_ContextDeadline(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Poll(ctx, "task-1")
	assert.ErrorIs(t, err, ErrTaskTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoll_RemoteFailure(t *testing.T) {
	for _, status := range []string{"ERROR", "CANCELED"} {
		t.Run(status, func(t *testing.T) {
			svc := &fakeService{runningPolls: 1, finalStatus: status}
			srv := httptest.NewServer(svc.handler(t))
			defer srv.Close()

			c := newTestClient(t, srv, newFakeClock(), nil)
			_, err := c.Transcribe(context.Background(), []byte("audio"), "mp3", 2)
			assert.ErrorIs(t, err, ErrTaskFailed)
			assert.ErrorIs(t, err, ErrTranscription)
		})
	}
}

func TestUpload_RefreshesTokenOnceOn401(t *testing.T) {
	svc := &fakeService{finalStatus: "DONE", uploadFails: []int{http.StatusUnauthorized}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	_, err := c.Transcribe(context.Background(), []byte("audio"), "mp3", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.tokenCalls.Load())
	assert.Equal(t, int32(2), svc.uploads.Load())
}

func TestUpload_SecondUnauthorizedIsAuthorizationError(t *testing.T) {
	svc := &fakeService{uploadFails: []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	_, err := c.Upload(context.Background(), []byte("audio"), "mp3")
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Equal(t, int32(2), svc.uploads.Load(), "exactly one retry after refresh")
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	svc := &fakeService{uploadFails: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	id, err := c.Upload(context.Background(), []byte("audio"), "mp3")
	require.NoError(t, err)
	assert.Equal(t, "file-1", id)
	assert.Equal(t, int32(3), svc.uploads.Load())
}

func TestUpload_RetryBudgetExhausted(t *testing.T) {
	svc := &fakeService{uploadFails: []int{502, 502, 502, 502, 502}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), func(cfg *Config) { cfg.MaxRetries = 2 })
	_, err := c.Upload(context.Background(), []byte("audio"), "mp3")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, int32(3), svc.uploads.Load())
}

func TestUpload_ClientErrorIsPermanent(t *testing.T) {
	svc := &fakeService{uploadFails: []int{http.StatusBadRequest}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	_, err := c.Upload(context.Background(), []byte("audio"), "mp3")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, int32(1), svc.uploads.Load())
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	_, err := c.Upload(context.Background(), []byte("audio"), "wav")
	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, int32(0), svc.uploads.Load())
}

func TestToken_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), nil)
	_, err := c.Upload(context.Background(), []byte("audio"), "mp3")
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x", AuthURL: "http://y"}, logger.NewNop())
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://x", AuthURL: "http://y", ClientID: "id", ClientSecret: "secret"}, logger.NewNop())
	assert.NoError(t, err)
}

func TestTokenSource_ClientCredentials(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"access_token":"abc"}`)
	}))
	defer srv.Close()

	ts := NewTokenSource(Config{AuthURL: srv.URL, ClientID: "id", ClientSecret: "secret", Scope: "S"}, srv.Client(), newFakeClock())
	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "Basic aWQ6c2VjcmV0", <-got)
}

func TestTokenSource_RefreshesAfterExpiry(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	expires := clock.Now().Add(time.Hour).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "abc", "expires_at": expires})
	}))
	defer srv.Close()

	ts := NewTokenSource(Config{AuthURL: srv.URL, APIKey: "k"}, srv.Client(), clock)
	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	<-clock.After(2 * time.Hour)
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenSource_WaiterHonorsOwnDeadline(t *testing.T) {
	var calls atomic.Int32
	received := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(received)
		}
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "slow"})
	}))
	defer srv.Close()
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()

	ts := NewTokenSource(Config{AuthURL: srv.URL, APIKey: "k"}, srv.Client(), newFakeClock())

	type result struct {
		token string
		err   error
	}
	first := make(chan result, 1)
	go func() {
		token, err := ts.Token(context.Background())
		first <- result{token, err}
	}()
	<-received

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := ts.Token(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.Less(t, time.Since(start), 2*time.Second)

	unblock()
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, "slow", res.token)

	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "slow", token)
	assert.Equal(t, int32(1), calls.Load())
}
