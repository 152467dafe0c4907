package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/protocol-flow/internal/app"
	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

var submitCmd = &cobra.Command{
	Use:   "submit <audio-file>",
	Short: "Submit a recording and print the task id",
	Long:  "Store a recording, create a task for it and print the task id. With --wait the command processes the task in-process and writes the protocol to --out.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var (
	submitSpeakers int
	submitWait     bool
	submitOut      string
)

func init() {
	submitCmd.Flags().IntVarP(&submitSpeakers, "speakers", "s", 0, "Speaker count hint, 1..10 (default 6)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Run the worker in-process until the task finishes")
	submitCmd.Flags().StringVarP(&submitOut, "out", "o", "", "Where to write the protocol with --wait (default <task-id>.docx)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(_ *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, _, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	task, err := a.Ingest.Ingest(ctx, filepath.Base(args[0]), data, submitSpeakers)
	if err != nil {
		return err
	}
	fmt.Println(task.ID)

	// The memory queue lives in this process, so nobody else could run the task.
	if !submitWait && a.Config.Queue.Driver != "memory" {
		return nil
	}

	final, err := waitForTask(ctx, a, task.ID)
	if err != nil {
		return err
	}
	if final.Status != domain.StatusDone {
		return fmt.Errorf("task %s ended with %s: %s", final.ID, final.Status, final.Error)
	}

	out := submitOut
	if out == "" {
		out = final.ID.String() + "." + domain.DocumentExtension
	}
	return writeResult(ctx, a, final, out)
}

// waitForTask runs the worker until the task reaches a terminal status.
func waitForTask(ctx context.Context, a *app.App, id uuid.UUID) (domain.Task, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	startWorker(gCtx, g, a)

	var final domain.Task
	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			task, err := a.Processor.GetStatus(gCtx, id)
			if err != nil {
				return err
			}
			if task.Status.IsTerminal() {
				final = task
				return nil
			}
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return domain.Task{}, err
	}
	if final.ID == uuid.Nil {
		return domain.Task{}, ctx.Err()
	}
	return final, nil
}
