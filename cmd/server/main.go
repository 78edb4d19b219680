// Package main provides the entry point for the graphmerge API server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/graphmerge/domain/classify"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/entities"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/domain/health"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/domain/postprocess"
	"github.com/emergent-company/graphmerge/domain/replace"
	"github.com/emergent-company/graphmerge/domain/scheduler"
	"github.com/emergent-company/graphmerge/domain/sweep"
	"github.com/emergent-company/graphmerge/domain/tracing"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/database"
	"github.com/emergent-company/graphmerge/internal/migrate"
	"github.com/emergent-company/graphmerge/internal/server"
	"github.com/emergent-company/graphmerge/internal/store/tenancy"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// .env.local overrides .env
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	// The backend decides whether Postgres is wired at all, so it is read
	// before the graph is built.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		server.Module,
		tracing.Module,
		storageModules(cfg),
		tenancy.Module,

		// Request path
		pipeline.Module,
		commit.Module,
		events.Module,
		entities.Module,
		postprocess.Module,

		// Background jobs (cron-based scheduled tasks)
		sweep.Module,
		replace.Module,
		classify.Module,
		scheduler.Module,

		health.Module,
	).Run()
}

// storageModules returns the database and migration modules for the
// postgres backend and nothing otherwise.
func storageModules(cfg *config.Config) fx.Option {
	if cfg.Store.Backend != config.BackendPostgres {
		return fx.Options()
	}
	return fx.Options(
		database.Module,
		migrate.Module,
	)
}
