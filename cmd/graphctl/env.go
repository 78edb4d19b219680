package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/database"
	"github.com/emergent-company/graphmerge/internal/store/badgerstore"
	"github.com/emergent-company/graphmerge/internal/store/tenancy"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// env is what the store-backed commands share.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *tenancy.Registry
	closers  []func()
}

// setup loads the configuration and opens the configured backend. The
// memory backend is accepted but nothing outlives the process.
func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger()
	e := &env{cfg: cfg, log: log}

	var open tenancy.Opener
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("memory backend selected, changes are discarded on exit")
		open = tenancy.MemoryOpener()

	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		db := database.Wrap(pool, cfg.Database, log)
		e.closers = append(e.closers, func() {
			_ = db.Close()
			pool.Close()
		})
		open = tenancy.PostgresOpener(db, log)

	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig(cfg.Store.BadgerDir)
		bcfg.InMemory = cfg.Store.BadgerInMemory
		bcfg.Logger = log
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = db.Close() })
		open = tenancy.BadgerOpener(db)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	registry, err := tenancy.NewRegistry(open, cfg.Store.TenantCacheSize, cfg.Store.KnownTenants(), log)
	if err != nil {
		e.close()
		return nil, err
	}
	e.registry = registry
	return e, nil
}

// close releases the registry before the backend it was opened on.
func (e *env) close() {
	if e.registry != nil {
		e.registry.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
