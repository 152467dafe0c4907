package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nguyentantai21042004/protocol-flow/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tasks and dispatch tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, log, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info(ctx, "Schema is up to date")
	return nil
}
