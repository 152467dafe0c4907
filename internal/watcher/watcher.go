package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

type implWatcher struct {
	cfg       Config
	handler   EventHandler
	logger    logger.Logger
	watcher   *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Start picks up recordings already in the inbox, then handles new ones
// until ctx is cancelled.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "File watcher started (max concurrent: %d). Monitoring: %s", w.cfg.MaxConcurrent, w.cfg.InboxDir)
	w.logger.Info(ctx, "Supported formats: %s", strings.Join(domain.SupportedFormats(), ", "))

	if err := w.scanExisting(ctx); err != nil {
		w.logger.Warn(ctx, "Failed to scan inbox: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Waiting for ongoing ingestion to complete...")
			w.wg.Wait()
			w.logger.Info(ctx, "File watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isAudioFile(event.Name) {
				w.logger.Debug(ctx, "Ignoring non-audio file: %s", event.Name)
				continue
			}
			w.logger.Info(ctx, "New recording detected: %s", event.Name)
			if err := w.dispatch(ctx, event.Name); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

func (w *implWatcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isAudioFile(e.Name()) {
			continue
		}
		if err := w.dispatch(ctx, filepath.Join(w.cfg.InboxDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// dispatch hands path to the handler on its own goroutine, blocking while
// MaxConcurrent files are in progress. A path already in progress is skipped.
func (w *implWatcher) dispatch(ctx context.Context, path string) error {
	w.mu.Lock()
	if _, busy := w.inFlight[path]; busy {
		w.mu.Unlock()
		return nil
	}
	w.inFlight[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.semaphore <- struct{}{}:
	case <-ctx.Done():
		w.forget(path)
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.semaphore }()
		defer w.forget(path)
		w.handle(ctx, path)
	}()
	return nil
}

func (w *implWatcher) handle(ctx context.Context, path string) {
	if w.cfg.SettleDelay > 0 {
		select {
		case <-time.After(w.cfg.SettleDelay):
		case <-ctx.Done():
			return
		}
	}

	// The startup scan and a CREATE event can both report the same file.
	if _, err := os.Stat(path); err != nil {
		return
	}

	if err := w.handler(ctx, path); err != nil {
		w.logger.Error(ctx, "Failed to ingest %s: %v", path, err)
		return
	}

	dst := filepath.Join(w.cfg.ArchiveDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		w.logger.Error(ctx, "Failed to archive %s: %v", path, err)
		return
	}
	w.logger.Debug(ctx, "Archived %s", dst)
}

func (w *implWatcher) forget(path string) {
	w.mu.Lock()
	delete(w.inFlight, path)
	w.mu.Unlock()
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

func isAudioFile(path string) bool {
	return domain.IsSupportedFormat(domain.FormatFromKey(path))
}
