// Package entities is the request path: it runs submitted statements through
// the transformer pipeline, commits the result and announces it.
package entities

import (
	"context"
	"log/slog"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Options tune one request.
type Options struct {
	// Strict fails the request on nodes without rdf:type instead of
	// skipping them.
	Strict bool
}

// Service handles entity writes and reads.
type Service struct {
	registry  store.Registry
	pipeline  *pipeline.Pipeline
	committer *commit.Committer
	bus       *events.Service
	ns        ident.Namespace
	log       *slog.Logger
}

// NewService creates a new entity service.
func NewService(registry store.Registry, p *pipeline.Pipeline, committer *commit.Committer, bus *events.Service, ns ident.Namespace, log *slog.Logger) *Service {
	return &Service{
		registry:  registry,
		pipeline:  p,
		committer: committer,
		bus:       bus,
		ns:        ns,
		log:       log.With(logger.Scope("entities")),
	}
}

// Create submits g as new statements. A pipeline error is returned as an
// error; a storage failure comes back as a FAILURE changeset.
func (s *Service) Create(ctx context.Context, tenant string, g *rdf.Graph, opts Options) (*changeset.Changeset, error) {
	return s.submit(ctx, tenant, changeset.FromGraph(tenant, s.ns, g), opts, events.EventTypeCreated)
}

// Update inserts and removes statements in one transaction. Inserted
// statements pass through the pipeline like a Create; removed statements
// may name external subjects by their original IRI.
func (s *Service) Update(ctx context.Context, tenant string, insert, remove *rdf.Graph, opts Options) (*changeset.Changeset, error) {
	removed := identifiers.Localize(remove, s.ns).Statements()
	cs, err := changeset.FromGraph(tenant, s.ns, insert).Include(removed, changeset.ActivityRemoved)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, tenant, cs, opts, events.EventTypeUpdated)
}

func (s *Service) submit(ctx context.Context, tenant string, cs *changeset.Changeset, opts Options, typ events.EntityEventType) (*changeset.Changeset, error) {
	st, err := s.registry.ForTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}

	out, err := s.pipeline.Run(ctx, cs, pipeline.Params{Store: st, Namespace: s.ns, Strict: opts.Strict})
	if err != nil {
		return nil, err
	}

	out = s.committer.Commit(ctx, st, out)
	if !out.Succeeded() {
		s.log.Warn("transaction failed",
			slog.String("tenant", tenant),
			slog.String("tx", out.ID().Value),
			slog.String("reason", out.FailureReason()))
		return out, nil
	}

	s.bus.Emit(events.EntityEvent{
		Type:          typ,
		Tenant:        tenant,
		TransactionID: out.ID().Value,
		Resources:     Resources(out),
	})
	return out, nil
}

// Resources lists the IRI subjects a changeset touched.
func Resources(cs *changeset.Changeset) []string {
	var out []string
	for _, s := range cs.TouchedSubjects() {
		if s.IsIRI() {
			out = append(out, s.Value)
		}
	}
	return out
}

// Query evaluates q against the tenant store.
func (s *Service) Query(ctx context.Context, tenant string, q store.Query) ([]store.Binding, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	st, err := s.registry.ForTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return store.QueryAll(ctx, st, q)
}
