package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CloudLaunch/internal/adapter/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
			return err
		}
		return printVersion(cmd.Context(), cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd.Context(), cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd.Context(), cmd)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printVersion(ctx context.Context, cmd *cobra.Command) error {
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return err
}
