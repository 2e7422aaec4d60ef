package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/velist/velist/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			database.SetMigrationLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
			if err := a.db.Migrate(cmd.Context()); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Migrations applied")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied state of every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			database.SetMigrationLogger(slog.New(slog.NewTextHandler(cmd.OutOrStdout(), nil)))
			return a.db.MigrationStatus(cmd.Context())
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
