package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrateCmd manages the schema of the Postgres rule store.
func migrateCmd() *cobra.Command {
	var databaseURL string
	var migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the rule store database schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database", "", "database URL (defaults to DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "path to the migrations directory")

	newMigrator := func() (*migrate.Migrate, error) {
		url := databaseURL
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			return nil, fmt.Errorf("database URL is required: use --database or DATABASE_URL")
		}
		return migrate.New(fmt.Sprintf("file://%s", migrationsPath), url)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to roll back migrations: %w", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Printf("version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})

	return cmd
}
