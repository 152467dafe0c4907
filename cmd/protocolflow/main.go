// Package main is the protocolflow command: it turns meeting recordings
// into formatted protocol documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/protocol-flow/internal/app"
	"github.com/nguyentantai21042004/protocol-flow/internal/config"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "protocolflow",
	Short:         "Meeting recording to protocol pipeline",
	Long:          "protocolflow transcribes meeting recordings with speaker diarization, summarizes them with an LLM and renders the result as a DOCX protocol.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig reads the config and opens the logger it describes.
func loadConfig() (*config.Config, logger.Logger, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closeLog := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.File)
	return cfg, log, closeLog, nil
}

// buildApp loads the config and wires every component.
func buildApp(ctx context.Context) (*app.App, logger.Logger, func(), error) {
	cfg, log, closeLog, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, err
	}

	cleanup := func() {
		a.Close()
		_ = closeLog()
	}
	return a, log, cleanup, nil
}
