// Package migrate applies the embedded goose migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/migrations"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// Module provides the migrator and runs pending migrations on start.
var Module = fx.Module("migrate",
	fx.Provide(NewMigrator),
	fx.Invoke(RunOnStart),
)

var gooseOnce sync.Once
var gooseErr error

// setup configures the goose globals once per process.
func setup() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		gooseErr = goose.SetDialect("postgres")
	})
	if gooseErr != nil {
		return fmt.Errorf("failed to set dialect: %w", gooseErr)
	}
	return nil
}

// Migrator runs migrations against one database.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator creates a Migrator on the bun connection.
func NewMigrator(db *bun.DB, log *slog.Logger) *Migrator {
	return New(db.DB, log)
}

// New creates a Migrator on a raw *sql.DB.
func New(db *sql.DB, log *slog.Logger) *Migrator {
	return &Migrator{db: db, log: log.With(logger.Scope("migrator"))}
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := setup(); err != nil {
		return err
	}
	m.log.Info("running database migrations")
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.log.Info("migrations completed successfully")
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := setup(); err != nil {
		return err
	}
	m.log.Info("rolling back last migration")
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	m.log.Info("rollback completed successfully")
	return nil
}

// Status prints the migration status through goose's logger.
func (m *Migrator) Status(ctx context.Context) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// RunOnStart applies pending migrations before the server accepts traffic.
func RunOnStart(lc fx.Lifecycle, m *Migrator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Up(ctx)
		},
	})
}
