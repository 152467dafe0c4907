package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Remote task states.
const (
	remoteDone     = "DONE"
	remoteError    = "ERROR"
	remoteCanceled = "CANCELED"
)

// RemoteTask is the recognition service view of a submitted job.
type RemoteTask struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ResponseFileID string `json:"response_file_id,omitempty"`
}

type envelope[T any] struct {
	Status int `json:"status"`
	Result T   `json:"result"`
}

type uploadResult struct {
	RequestFileID string `json:"request_file_id"`
}

type speakerSeparation struct {
	Enable                bool `json:"enable"`
	EnableOnlyMainSpeaker bool `json:"enable_only_main_speaker"`
	Count                 int  `json:"count"`
}

type recognitionOptions struct {
	Model                 string            `json:"model"`
	AudioEncoding         string            `json:"audio_encoding"`
	SampleRate            int               `json:"sample_rate"`
	Language              string            `json:"language"`
	EnableProfanityFilter bool              `json:"enable_profanity_filter"`
	ChannelsCount         int               `json:"channels_count"`
	SpeakerSeparation     speakerSeparation `json:"speaker_separation_options"`
}

type hints struct {
	Words         []string `json:"words"`
	EnableLetters bool     `json:"enable_letters"`
	EOUTimeout    int      `json:"eou_timeout"`
}

type recognizeRequest struct {
	Options       recognitionOptions `json:"options"`
	RequestFileID string             `json:"request_file_id"`
	Hints         *hints             `json:"hints,omitempty"`
}

// Upload sends raw audio and returns the request file id.
func (c *Client) Upload(ctx context.Context, audio []byte, format string) (string, error) {
	contentType, err := domain.ContentType(format)
	if err != nil {
		return "", opError("upload", fmt.Errorf("%w: %v", ErrUpload, err))
	}

	body, err := c.call(ctx, ErrUpload, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/data:upload", bytes.NewReader(audio))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", opError("upload", err)
	}

	var out envelope[uploadResult]
	if err := json.Unmarshal(body, &out); err != nil || out.Result.RequestFileID == "" {
		return "", opError("upload", fmt.Errorf("%w: malformed response: %s", ErrUpload, snippet(body)))
	}
	return out.Result.RequestFileID, nil
}

// Submit starts asynchronous recognition of an uploaded file.
func (c *Client) Submit(ctx context.Context, requestFileID, format string, speakers int) (RemoteTask, error) {
	encoding, err := domain.AudioEncoding(format)
	if err != nil {
		return RemoteTask{}, opError("submit", fmt.Errorf("%w: %v", ErrSubmission, err))
	}
	if speakers <= 0 {
		speakers = domain.DefaultSpeakerCount
	}

	payload := recognizeRequest{
		Options: recognitionOptions{
			Model:                 c.cfg.Model,
			AudioEncoding:         encoding,
			SampleRate:            sampleRate,
			Language:              c.cfg.Language,
			EnableProfanityFilter: c.cfg.ProfanityFilter,
			ChannelsCount:         1,
			SpeakerSeparation: speakerSeparation{
				Enable:                c.cfg.Diarization,
				EnableOnlyMainSpeaker: false,
				Count:                 min(speakers, maxSpeakers),
			},
		},
		RequestFileID: requestFileID,
	}
	if len(c.cfg.HintWords) > 0 {
		payload.Hints = &hints{Words: c.cfg.HintWords, EnableLetters: false, EOUTimeout: eouTimeout}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return RemoteTask{}, opError("submit", fmt.Errorf("%w: encode: %v", ErrSubmission, err))
	}

	body, err := c.call(ctx, ErrSubmission, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/speech:async_recognize", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())
		return req, nil
	})
	if err != nil {
		return RemoteTask{}, opError("submit", err)
	}

	var out envelope[RemoteTask]
	if err := json.Unmarshal(body, &out); err != nil || out.Result.ID == "" {
		return RemoteTask{}, opError("submit", fmt.Errorf("%w: malformed response: %s", ErrSubmission, snippet(body)))
	}
	return out.Result, nil
}

// Status fetches the current state of a remote task once.
func (c *Client) Status(ctx context.Context, taskID string) (RemoteTask, error) {
	endpoint := c.cfg.BaseURL + "/task:get?" + url.Values{"id": {taskID}}.Encode()
	body, err := c.call(ctx, ErrTaskFailed, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return RemoteTask{}, opError("poll", err)
	}

	var out envelope[RemoteTask]
	if err := json.Unmarshal(body, &out); err != nil {
		return RemoteTask{}, opError("poll", fmt.Errorf("%w: malformed response: %s", ErrTaskFailed, snippet(body)))
	}
	if out.Status != 0 && out.Status != http.StatusOK {
		return RemoteTask{}, opError("poll", fmt.Errorf("%w: status %d", ErrTaskFailed, out.Status))
	}
	return out.Result, nil
}

// Poll waits PollInterval between status checks until the remote task
// reaches a terminal state or PollTimeout elapses.
func (c *Client) Poll(ctx context.Context, taskID string) (RemoteTask, error) {
	deadline := c.clock.Now().Add(c.cfg.PollTimeout)
	polls := 0

	for {
		select {
		case <-ctx.Done():
			return RemoteTask{}, opError("poll", fmt.Errorf("%w: after %d polls: %w", ErrTaskTimeout, polls, ctx.Err()))
		case <-c.clock.After(c.cfg.PollInterval):
		}

		task, err := c.Status(ctx, taskID)
		polls++
		if err != nil {
			if ctx.Err() != nil {
				return RemoteTask{}, opError("poll", fmt.Errorf("%w: after %d polls: %w", ErrTaskTimeout, polls, ctx.Err()))
			}
			return RemoteTask{}, err
		}

		switch task.Status {
		case remoteDone:
			if task.ResponseFileID == "" {
				return RemoteTask{}, opError("poll", fmt.Errorf("%w: done without response file", ErrTaskFailed))
			}
			c.l.Debug(ctx, "Recognition task %s done after %d polls", taskID, polls)
			return task, nil
		case remoteError, remoteCanceled:
			return RemoteTask{}, opError("poll", fmt.Errorf("%w: remote status %s", ErrTaskFailed, task.Status))
		}

		if !c.clock.Now().Before(deadline) {
			return RemoteTask{}, opError("poll", fmt.Errorf("%w: still %s after %d polls", ErrTaskTimeout, task.Status, polls))
		}
	}
}

// Fetch downloads and decodes the recognition result.
func (c *Client) Fetch(ctx context.Context, responseFileID string) ([]domain.TranscriptSegment, error) {
	endpoint := c.cfg.BaseURL + "/data:download?" + url.Values{"response_file_id": {responseFileID}}.Encode()
	body, err := c.call(ctx, ErrDownload, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/octet-stream")
		return req, nil
	})
	if err != nil {
		return nil, opError("fetch", err)
	}

	segments, err := decodeSegments(body)
	if err != nil {
		return nil, opError("fetch", fmt.Errorf("%w: %v", ErrDownload, err))
	}
	return segments, nil
}

// Transcribe runs upload, submit, poll and fetch in order.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string, speakers int) ([]domain.TranscriptSegment, error) {
	fileID, err := c.Upload(ctx, audio, format)
	if err != nil {
		return nil, err
	}
	c.l.Debug(ctx, "Uploaded %d bytes of %s audio as %s", len(audio), format, fileID)

	task, err := c.Submit(ctx, fileID, format, speakers)
	if err != nil {
		return nil, err
	}
	c.l.Debug(ctx, "Submitted recognition task %s (%s)", task.ID, task.Status)

	switch task.Status {
	case remoteError, remoteCanceled:
		return nil, opError("submit", fmt.Errorf("%w: remote status %s", ErrTaskFailed, task.Status))
	}

	if task.Status != remoteDone || task.ResponseFileID == "" {
		task, err = c.Poll(ctx, task.ID)
		if err != nil {
			return nil, err
		}
	}

	segments, err := c.Fetch(ctx, task.ResponseFileID)
	if err != nil {
		return nil, err
	}
	c.l.Info(ctx, "Transcribed %s audio into %d segments", format, len(segments))
	return segments, nil
}

// retryableStatus marks a response worth another attempt.
type retryableStatus struct {
	code int
	body []byte
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, snippet(e.body))
}

// call sends one logical request. Transient failures are retried with
// backoff; a 401 invalidates the token and the call is repeated exactly once.
func (c *Client) call(ctx context.Context, sentinel error, newRequest func(context.Context) (*http.Request, error)) ([]byte, error) {
	refreshed := false
	for {
		code, body, err := c.send(ctx, newRequest)
		if err != nil {
			if errors.Is(err, ErrAuthorization) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", sentinel, err)
		}

		if code == http.StatusUnauthorized {
			c.tokens.Invalidate()
			if refreshed {
				return nil, fmt.Errorf("%w: token rejected after refresh", ErrAuthorization)
			}
			refreshed = true
			c.l.Debug(ctx, "Bearer token rejected, refreshing")
			continue
		}
		if code != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d: %s", sentinel, code, snippet(body))
		}
		return body, nil
	}
}

func (c *Client) send(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) (int, []byte, error) {
	var (
		code int
		body []byte
	)

	operation := func() error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := newRequest(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &retryableStatus{code: resp.StatusCode, body: data}
		}
		code, body = resp.StatusCode, data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.l.Warn(ctx, "Transient recognition service failure, retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return 0, nil, err
	}
	return code, body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
