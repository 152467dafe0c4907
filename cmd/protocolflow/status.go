package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/protocol-flow/internal/app"
	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Print the status of a task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var downloadCmd = &cobra.Command{
	Use:   "download <task-id>",
	Short: "Download the protocol of a finished task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var downloadOut string

func init() {
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "Output path (default <task-id>.docx)")
	rootCmd.AddCommand(statusCmd, downloadCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, _, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	task, err := a.Processor.GetStatus(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(task)
}

func runDownload(_ *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, _, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	task, err := a.Processor.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != domain.StatusDone {
		return fmt.Errorf("task %s is %s, no protocol to download", id, task.Status)
	}

	out := downloadOut
	if out == "" {
		out = id.String() + "." + domain.DocumentExtension
	}
	return writeResult(ctx, a, task, out)
}

func writeResult(ctx context.Context, a *app.App, task domain.Task, out string) error {
	var ref string
	if task.ResultRef != nil {
		ref = *task.ResultRef
	}
	data, err := a.Processor.Download(ctx, ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "Protocol written to %s\n", out)
	return nil
}
