package watcher

import "context"

// Watcher monitors an inbox directory for new recordings.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// EventHandler handles one recording found in the inbox.
type EventHandler func(ctx context.Context, filePath string) error
