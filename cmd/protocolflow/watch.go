package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/protocol-flow/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest recordings dropped into the inbox directory",
	Long:  "Watch paths.inbox for new audio files, ingest each one as a task and move it to paths.archived. With the memory queue driver the worker runs in the same process.",
	RunE:  runWatch,
}

var (
	watchSpeakers   int
	watchWithWorker bool
)

func init() {
	watchCmd.Flags().IntVarP(&watchSpeakers, "speakers", "s", 0, "Speaker count hint for every ingested file (default 6)")
	watchCmd.Flags().BoolVar(&watchWithWorker, "with-worker", false, "Also run the worker in this process")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, log, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logBanner(ctx, log, a, "watch")

	handler := func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		task, err := a.Ingest.Ingest(ctx, filepath.Base(path), data, watchSpeakers)
		if err != nil {
			return err
		}
		log.Info(ctx, "Queued %s as task %s", filepath.Base(path), task.ID)
		return nil
	}

	w, err := watcher.New(watcher.Config{
		InboxDir:      a.Config.Paths.Inbox,
		ArchiveDir:    a.Config.Paths.Archived,
		MaxConcurrent: a.Config.Performance.MaxConcurrent,
		SettleDelay:   a.Config.Paths.SettleDelay,
	}, handler, log)
	if err != nil {
		return err
	}
	defer w.Stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Start(gCtx) })
	if watchWithWorker || a.Config.Queue.Driver == "memory" {
		startWorker(gCtx, g, a)
	}
	return waitGroup(g)
}
