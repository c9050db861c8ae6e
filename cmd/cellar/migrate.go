package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/cellar/pkg/blob"
	"github.com/cuemby/cellar/pkg/config"
	"github.com/cuemby/cellar/pkg/refstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Ensure the configured Postgres backends have their schema installed",
	Long: `migrate opens every Postgres-backed blob tier and the Postgres
RefStore backend (if configured) and calls EnsureSchema on each,
creating the backing tables and, for RefStore, the change-notification
trigger. It is a no-op for memory/file/bolt/raft backends.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("cellar migrate: load config: %w", err)
	}

	ctx := context.Background()

	for i, t := range cfg.BlobTiers {
		if t.Kind != "postgres" {
			continue
		}
		db, err := sql.Open("postgres", t.DSN)
		if err != nil {
			return fmt.Errorf("cellar migrate: blobTiers[%d]: open: %w", i, err)
		}
		store, err := blob.NewPostgresStore(db, blob.PostgresOptions{})
		if err != nil {
			return fmt.Errorf("cellar migrate: blobTiers[%d]: %w", i, err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("cellar migrate: blobTiers[%d]: ensure schema: %w", i, err)
		}
		fmt.Printf("blob tier %d (postgres): schema ensured\n", i)
	}

	if cfg.RefStore.Kind == "postgres" {
		db, err := sql.Open("postgres", cfg.RefStore.DSN)
		if err != nil {
			return fmt.Errorf("cellar migrate: refStore: open: %w", err)
		}
		store, err := refstore.NewPostgresStore(db, refstore.PostgresOptions{DSN: cfg.RefStore.DSN})
		if err != nil {
			return fmt.Errorf("cellar migrate: refStore: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("cellar migrate: refStore: ensure schema: %w", err)
		}
		fmt.Println("refStore (postgres): schema ensured")
	}

	fmt.Println("migrate: done")
	return nil
}
