package tenancy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/uptrace/bun"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/badgerstore"
	"github.com/emergent-company/graphmerge/internal/store/memstore"
	"github.com/emergent-company/graphmerge/internal/store/pgstore"
)

// retained keeps an in-memory store alive across cache evictions; the data
// lives only in the store itself.
type retained struct {
	*memstore.Store
}

func (retained) Close() error { return nil }

// MemoryOpener keeps one memstore per tenant for the process lifetime.
func MemoryOpener() Opener {
	var mu sync.Mutex
	stores := make(map[string]*memstore.Store)
	return func(_ context.Context, tenant string) (store.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stores[tenant]
		if !ok {
			s = memstore.New()
			stores[tenant] = s
		}
		return retained{s}, nil
	}
}

// PostgresOpener scopes the shared statements table to each tenant.
func PostgresOpener(db bun.IDB, log *slog.Logger) Opener {
	return func(ctx context.Context, tenant string) (store.Store, error) {
		s := pgstore.New(db, tenant, log)
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// BadgerOpener scopes the shared badger database to each tenant.
func BadgerOpener(db *badgerstore.DB) Opener {
	return func(_ context.Context, tenant string) (store.Store, error) {
		return db.ForTenant(tenant), nil
	}
}
