package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/storage"
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every command migrates on startup; run this to prepare a database ahead of
time or to check its schema version.`,
		RunE: a.runMigrate,
	}
	cmd.Flags().Bool("status", false, "show the current schema version without applying changes")
	return cmd
}

func (a *app) runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")
	dbPath := a.cfg.Database.Path

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		cmd.Println(cli.RenderBox("Database", fmt.Sprintf("Path:    %s\nVersion: %d\nLatest:  %d",
			dbPath, current, storage.ExpectedSchemaVersion)))
		return nil
	}

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > 0 && current < storage.ExpectedSchemaVersion {
		info, err := store.AutoBackup(ctx, "migrate")
		if err != nil {
			return fmt.Errorf("failed to back up database before migrating: %w", err)
		}
		cmd.Println(cli.FormatInfo("Saved backup " + info.ID))
	}

	slog.Info("Running database migrations", "database", dbPath, "from_version", current)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	cmd.Println(cli.FormatSuccess("Database migrations completed"))
	return nil
}
