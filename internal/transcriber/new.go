package transcriber

import (
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

// Config carries recognition service endpoints, credentials and tuning.
type Config struct {
	BaseURL         string
	AuthURL         string
	APIKey          string
	ClientID        string
	ClientSecret    string
	Scope           string
	Model           string
	Language        string
	Diarization     bool
	ProfanityFilter bool
	HintWords       []string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	RequestTimeout  time.Duration
	MaxRetries      int
	InsecureTLS     bool
}

const (
	defaultScope        = "SALUTE_SPEECH_PERS"
	defaultModel        = "general"
	defaultLanguage     = "ru-RU"
	defaultPollInterval = time.Second
	defaultPollTimeout  = 20 * time.Minute
	sampleRate          = 16000
	maxSpeakers         = 10
	eouTimeout          = 1
)

// Client speaks the upload, submit, poll, fetch protocol.
type Client struct {
	cfg        Config
	l          logger.Logger
	httpClient *http.Client
	clock      Clock
	tokens     *TokenSource
	newBackOff func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithBackOff replaces the transient-failure retry policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// New creates a Client. Credentials are either an API key or a client id and secret pair.
func New(cfg Config, l logger.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.AuthURL == "" {
		return nil, errors.New("transcriber: base and auth URLs are required")
	}
	if cfg.APIKey == "" && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, errors.New("transcriber: api key or client id/secret is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}

	c := &Client{
		cfg:   cfg,
		l:     l.With("component", "transcriber"),
		clock: realClock{},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.httpClient = &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	}
	c.tokens = NewTokenSource(cfg, c.httpClient, c.clock)

	return c, nil
}
