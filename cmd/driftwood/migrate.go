// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lcaswell/driftwood/internal/store"
	"github.com/lcaswell/driftwood/internal/xdg"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the SQLite database.`,
		RunE:  runMigrate,
	}
	cmd.Flags().String("data-dir", "", "data directory (default: XDG_DATA_HOME/driftwood)")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = xdg.DataDir()
	}
	if err := xdg.EnsureDir(cfg.DataDir); err != nil {
		return oops.Code("DATA_DIR_FAILED").Wrap(err)
	}

	cmd.Println("Running migrations...")
	migrator, err := store.NewMigrator(cfg.DBPath())
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	schemaVersion, dirty, err := migrator.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}

	cmd.Printf("Migrations completed successfully (version %d, dirty=%v)\n", schemaVersion, dirty)
	return nil
}
