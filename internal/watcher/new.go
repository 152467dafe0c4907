package watcher

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

// Config describes the directories and limits of a Watcher.
type Config struct {
	InboxDir   string
	ArchiveDir string
	// MaxConcurrent bounds parallel handler calls. Defaults to 2.
	MaxConcurrent int
	// SettleDelay gives writers time to finish before a file is read.
	SettleDelay time.Duration
}

// New creates a new Watcher instance with concurrency control
func New(cfg Config, handler EventHandler, log logger.Logger) (Watcher, error) {
	for _, dir := range []string{cfg.InboxDir, cfg.ArchiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(cfg.InboxDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	return &implWatcher{
		cfg:       cfg,
		handler:   handler,
		logger:    log.With("component", "watcher"),
		watcher:   watcher,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		inFlight:  make(map[string]struct{}),
	}, nil
}
