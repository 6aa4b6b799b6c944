package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/statement-flow/internal/config"
	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version and seed
the built-in institution patterns.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "show the schema version without applying changes")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	dbPath := config.ExpandPath(viper.GetString("database.path"))
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
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\nSchema version: %d (latest %d)\n",
			dbPath, current, storage.ExpectedSchemaVersion)
		return nil
	}

	slog.Info("Running database migrations", "database", dbPath)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	added, err := store.SeedBuiltinPatterns(ctx, institution.Default().BuiltinPatterns())
	if err != nil {
		return fmt.Errorf("failed to seed built-in patterns: %w", err)
	}
	slog.Info("Database migrations completed", "builtin_patterns_added", added)
	return nil
}
