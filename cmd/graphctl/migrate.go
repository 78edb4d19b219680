package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/migrate"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "connection string (default: built from POSTGRES_* or DATABASE_URL)")

	run := func(action func(cmd *cobra.Command, m *migrate.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			sqldb, err := openSQL(dsn)
			if err != nil {
				return err
			}
			defer sqldb.Close()
			return action(cmd, migrate.New(sqldb, logger.NewLogger()))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrator) error {
				return m.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrator) error {
				return m.Down(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the migration status",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrator) error {
				if err := m.Status(cmd.Context()); err != nil {
					return err
				}
				v, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", v)
				return nil
			}),
		},
	)
	return cmd
}

// resolveDSN prefers the flag over the configured connection.
func resolveDSN(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Database.DSN()
}

func openSQL(flag string) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(resolveDSN(flag, cfg)))), nil
}
