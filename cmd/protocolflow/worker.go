package main

import (
	"context"
	"errors"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/protocol-flow/internal/app"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued tasks and produce protocols",
	Long:  "Consume dispatch messages, run transcription, summarization and rendering for each task, and fail tasks abandoned by crashed workers.",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, log, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logBanner(ctx, log, a, "worker")

	g, gCtx := errgroup.WithContext(ctx)
	startWorker(gCtx, g, a)
	return waitGroup(g)
}

// startWorker runs the consumer loop and the stale task reaper in g.
func startWorker(ctx context.Context, g *errgroup.Group, a *app.App) {
	g.Go(func() error { return a.Worker.Run(ctx) })
	g.Go(func() error { return a.Reaper.Run(ctx) })
}

// waitGroup treats cancellation as a clean shutdown.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logBanner(ctx context.Context, log logger.Logger, a *app.App, mode string) {
	cfg := a.Config
	log.Info(ctx, "========================================")
	log.Info(ctx, "Protocol Flow (%s)", mode)
	log.Info(ctx, "========================================")
	log.Info(ctx, "System: %s/%s", runtime.GOOS, runtime.GOARCH)
	log.Info(ctx, "Storage: %s, queue: %s, LLM: %s/%s", cfg.Storage.Driver, cfg.Queue.Driver, cfg.LLM.Provider, cfg.LLM.Model)
	log.Info(ctx, "Max Concurrent Processing: %d", cfg.Performance.MaxConcurrent)
	log.Info(ctx, "Task deadline: %s", cfg.Pipeline.TaskDeadline)
	log.Info(ctx, "Press Ctrl+C to stop")
	log.Info(ctx, "========================================")
}
