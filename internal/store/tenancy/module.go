package tenancy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/badgerstore"
)

// Module provides the tenant registry for the configured backend.
var Module = fx.Module("tenancy",
	fx.Provide(
		NewOpener,
		NewRegistryFromConfig,
		fx.Annotate(
			func(r *Registry) store.Registry { return r },
			fx.As(new(store.Registry)),
		),
	),
)

// OpenerParams are the dependencies of NewOpener. DB is only present when
// the database module is installed.
type OpenerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Log       *slog.Logger
	DB        bun.IDB `optional:"true"`
}

// NewOpener returns the opener of the configured backend.
func NewOpener(p OpenerParams) (Opener, error) {
	cfg := p.Config.Store
	switch cfg.Backend {
	case config.BackendMemory:
		return MemoryOpener(), nil

	case config.BackendPostgres:
		if p.DB == nil {
			return nil, fmt.Errorf("store backend %q requires the database module", cfg.Backend)
		}
		return PostgresOpener(p.DB, p.Log), nil

	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig(cfg.BadgerDir)
		bcfg.InMemory = cfg.BadgerInMemory
		bcfg.Logger = p.Log
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
		return BadgerOpener(db), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewRegistryFromConfig builds the registry and closes it on shutdown.
func NewRegistryFromConfig(lc fx.Lifecycle, open Opener, cfg *config.Config, log *slog.Logger) (*Registry, error) {
	r, err := NewRegistry(open, cfg.Store.TenantCacheSize, cfg.Store.KnownTenants(), log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			r.Close()
			return nil
		},
	})
	return r, nil
}
