package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// TokenSource fetches a bearer token lazily and caches it until it is
// invalidated or its reported expiry has passed. Concurrent callers share a
// single fetch and the cache lock is never held across the HTTP call.
type TokenSource struct {
	authURL    string
	credential string
	scope      string
	rqUID      string
	httpClient *http.Client
	clock      Clock
	group      singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresAt is unix milliseconds.
	ExpiresAt int64 `json:"expires_at"`
}

const (
	// expirySkew refreshes slightly before the reported expiry.
	expirySkew = 30 * time.Second
	// tokenFetchTimeout bounds a shared fetch, which outlives the caller that started it.
	tokenFetchTimeout = time.Minute
)

func NewTokenSource(cfg Config, hc *http.Client, clock Clock) *TokenSource {
	credential := cfg.APIKey
	if credential == "" {
		credential = base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
	}
	return &TokenSource{
		authURL:    cfg.AuthURL,
		credential: credential,
		scope:      cfg.Scope,
		rqUID:      uuid.NewString(),
		httpClient: hc,
		clock:      clock,
	}
}

// Token returns the cached token or waits for a shared fetch. A caller
// whose ctx ends first returns early while the fetch continues for others.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	ch := s.group.DoChan("token", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		resp, err := s.fetch(fctx)
		if err != nil {
			return "", err
		}
		s.store(resp)
		return resp.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: waiting for token: %w", ErrAuthorization, ctx.Err())
	}
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiresAt.IsZero() || s.clock.Now().Before(s.expiresAt.Add(-expirySkew))) {
		return s.token, true
	}
	return "", false
}

func (s *TokenSource) store(resp tokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = resp.AccessToken
	s.expiresAt = time.Time{}
	if resp.ExpiresAt > 0 {
		s.expiresAt = time.UnixMilli(resp.ExpiresAt)
	}
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *TokenSource) fetch(ctx context.Context) (tokenResponse, error) {
	form := url.Values{"scope": {s.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: new request: %v", ErrAuthorization, err)
	}
	req.Header.Set("Authorization", "Basic "+s.credential)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", s.rqUID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: %v", ErrAuthorization, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return tokenResponse{}, fmt.Errorf("%w: credentials rejected", ErrAuthorization)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return tokenResponse{}, fmt.Errorf("%w: status %d: %s", ErrAuthorization, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tokenResponse{}, fmt.Errorf("%w: decode token: %v", ErrAuthorization, err)
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("%w: empty access token", ErrAuthorization)
	}
	return tr, nil
}
