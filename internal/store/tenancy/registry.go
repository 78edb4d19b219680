// Package tenancy hands out one store per tenant, opening them lazily and
// keeping a bounded set of handles open.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// ErrInvalidTenant is returned for tenant names outside [A-Za-z0-9_.-].
var ErrInvalidTenant = errors.New("invalid tenant")

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Opener opens the store of one tenant.
type Opener func(ctx context.Context, tenant string) (store.Store, error)

// Registry caches tenant stores in an LRU. Evicted stores are closed.
type Registry struct {
	mu    sync.Mutex
	open  Opener
	cache *lru.Cache[string, store.Store]
	known map[string]struct{}
	log   *slog.Logger
}

var _ store.Registry = (*Registry)(nil)

// NewRegistry returns a registry holding at most size open stores. known
// seeds Tenants.
func NewRegistry(open Opener, size int, known []string, log *slog.Logger) (*Registry, error) {
	r := &Registry{
		open:  open,
		known: make(map[string]struct{}, len(known)),
		log:   log.With(logger.Scope("tenancy")),
	}
	cache, err := lru.NewWithEvict(size, func(tenant string, s store.Store) {
		if err := s.Close(); err != nil {
			r.log.Warn("closing evicted tenant store", slog.String("tenant", tenant), logger.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("tenant cache: %w", err)
	}
	r.cache = cache
	for _, t := range known {
		r.known[t] = struct{}{}
	}
	return r, nil
}

// ForTenant returns the cached store of tenant, opening it on first use.
func (r *Registry) ForTenant(ctx context.Context, tenant string) (store.Store, error) {
	if !tenantPattern.MatchString(tenant) {
		return nil, fmt.Errorf("%w %q", ErrInvalidTenant, tenant)
	}
	if s, ok := r.cache.Get(tenant); ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Get(tenant); ok {
		return s, nil
	}
	s, err := r.open(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("open store of tenant %s: %w", tenant, err)
	}
	r.cache.Add(tenant, s)
	if _, ok := r.known[tenant]; !ok {
		r.known[tenant] = struct{}{}
		r.log.Info("tenant store opened", slog.String("tenant", tenant))
	}
	return s, nil
}

// Tenants lists every configured or seen tenant in sorted order.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.known))
	for t := range r.known {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Open returns the number of cached store handles.
func (r *Registry) Open() int {
	return r.cache.Len()
}

// Close closes every cached store.
func (r *Registry) Close() {
	r.cache.Purge()
}
