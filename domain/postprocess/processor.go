// Package postprocess reacts to committed transactions. Every processor runs
// after the fact with its own changeset; a failure is logged and never
// reaches the request that triggered it.
package postprocess

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
	"github.com/emergent-company/graphmerge/pkg/tracing"
)

// Processor names, used in logs and metrics.
const (
	InjectCreationDateName      = "inject-creation-date"
	UpdateModifiedDateName      = "update-modified-date"
	MergeEmbeddedDuplicatesName = "merge-embedded-duplicates"
)

// DefaultTimeout bounds one processor run.
const DefaultTimeout = 30 * time.Second

// Processors holds the event-driven postprocessors of one process.
type Processors struct {
	registry  store.Registry
	committer *commit.Committer
	ns        ident.Namespace
	log       *slog.Logger
	now       func() time.Time
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New returns the postprocessors. They do nothing until Start.
func New(registry store.Registry, committer *commit.Committer, ns ident.Namespace, log *slog.Logger) *Processors {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processors{
		registry:  registry,
		committer: committer,
		ns:        ns,
		log:       log.With(logger.Scope("postprocess")),
		now:       time.Now,
		timeout:   DefaultTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the events of every tenant.
func (p *Processors) Start(bus *events.Service) {
	p.unsub = bus.SubscribeAll(p.Handle)
}

// Stop unsubscribes, cancels runs in flight and waits for them to return.
// Events delivered after Stop are dropped.
func (p *Processors) Stop() {
	if p.unsub != nil {
		p.unsub()
	}
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

// Handle dispatches one event to the processors that react to its type.
func (p *Processors) Handle(event events.EntityEvent) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	switch event.Type {
	case events.EventTypeCreated:
		p.run(InjectCreationDateName, event, p.InjectCreationDate)
		p.run(MergeEmbeddedDuplicatesName, event, p.MergeEmbeddedDuplicates)
	case events.EventTypeUpdated:
		p.run(UpdateModifiedDateName, event, p.UpdateModifiedDate)
		p.run(MergeEmbeddedDuplicatesName, event, p.MergeEmbeddedDuplicates)
	}
}

func (p *Processors) run(name string, event events.EntityEvent, fn func(context.Context, events.EntityEvent) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, "postprocess."+name,
		tracing.KeyTenant.String(event.Tenant),
		tracing.KeyTransactionID.String(event.TransactionID),
	)
	defer span.End()

	if err := fn(ctx, event); err != nil {
		tracing.Fail(span, err)
		metrics.PostprocessorRuns.WithLabelValues(name, "failed").Inc()
		p.log.Warn("postprocessor failed",
			slog.String("processor", name),
			slog.String("tenant", event.Tenant),
			slog.String("tx", event.TransactionID),
			logger.Error(err))
		return
	}
	metrics.PostprocessorRuns.WithLabelValues(name, "completed").Inc()
}

// commit writes patch as one transaction. An empty patch is not committed.
func (p *Processors) commit(ctx context.Context, st store.Store, tenant, name string, patch changeset.Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	cs, err := changeset.New(tenant, p.ns).Apply(patch)
	if err != nil {
		return err
	}
	out := p.committer.Commit(ctx, st, cs)
	if !out.Succeeded() {
		return &commitError{reason: out.FailureReason()}
	}
	p.log.Debug("postprocessor committed",
		slog.String("processor", name),
		slog.String("tenant", tenant),
		slog.String("tx", out.ID().Value))
	return nil
}

type commitError struct{ reason string }

func (e *commitError) Error() string { return "commit failed: " + e.reason }

// individuals resolves the event's resources to the persisted ones that
// carry an rdf:type, with their statements.
func (p *Processors) individuals(ctx context.Context, st store.Store, event events.EntityEvent) ([]fragment, error) {
	out := make([]fragment, 0, len(event.Resources))
	for _, r := range event.Resources {
		id := rdf.IRI(r)
		stmts, err := store.StatementsAbout(ctx, st, id)
		if err != nil {
			return nil, err
		}
		f := fragment{id: id, graph: rdf.NewGraph(stmts...)}
		if _, typed := f.graph.FirstObject(id, rdf.Type); !typed {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// fragment is one resource and its own statements.
type fragment struct {
	id    rdf.Term
	graph *rdf.Graph
}
