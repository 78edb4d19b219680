package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
	"github.com/emergent-company/graphmerge/pkg/tracing"
)

// ErrRunning is returned when a pass is requested while another one runs.
var ErrRunning = errors.New("type coercion already running")

// DefaultBatchSize caps the resources classified per tenant and pass.
const DefaultBatchSize = 500

// Report summarizes one tenant's coercion pass.
type Report struct {
	Tenant     string        `json:"tenant"`
	Scanned    int           `json:"scanned"`
	Classified int           `json:"classified"`
	Duration   time.Duration `json:"duration"`
}

// Coercer assigns local classes to typed resources already in the store.
type Coercer struct {
	registry  store.Registry
	committer *commit.Committer
	ns        ident.Namespace
	batch     int
	running   atomic.Bool
	log       *slog.Logger
}

// NewCoercer returns a coercer. A batch size of zero means DefaultBatchSize.
func NewCoercer(registry store.Registry, committer *commit.Committer, ns ident.Namespace, batch int, log *slog.Logger) *Coercer {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Coercer{
		registry:  registry,
		committer: committer,
		ns:        ns,
		batch:     batch,
		log:       log.With(logger.Scope("classify.coercion")),
	}
}

// Running reports whether a pass is in flight.
func (c *Coercer) Running() bool { return c.running.Load() }

// Run classifies the given tenants, or every known tenant when none are
// given. One tenant's failure does not stop the others.
func (c *Coercer) Run(ctx context.Context, tenants ...string) ([]Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		metrics.JobRuns.WithLabelValues("type_coercion", "skipped").Inc()
		return nil, ErrRunning
	}
	defer c.running.Store(false)

	if len(tenants) == 0 {
		tenants = c.registry.Tenants()
	}
	var (
		reports []Report
		errs    []error
	)
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := c.coerceTenant(ctx, tenant)
		reports = append(reports, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		metrics.JobRuns.WithLabelValues("type_coercion", "failed").Inc()
	} else {
		metrics.JobRuns.WithLabelValues("type_coercion", "completed").Inc()
	}
	return reports, err
}

// TypedSubjectsQuery lists the distinct IRI subjects that carry an
// rdf:type.
func TypedSubjectsQuery() store.Query {
	return store.Query{
		Select:   []string{"s"},
		Distinct: true,
		Where: []store.Pattern{
			{Subject: store.Var("s"), Predicate: store.Const(rdf.Type), Object: store.Var("type")},
		},
		Filters: []store.Filter{{Op: store.FilterIsIRI, Var: "s"}},
		OrderBy: []string{"s"},
	}
}

func (c *Coercer) coerceTenant(ctx context.Context, tenant string) (report Report, err error) {
	report.Tenant = tenant
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	ctx, span := tracing.Start(ctx, "classify.tenant", tracing.KeyTenant.String(tenant))
	defer span.End()

	st, err := c.registry.ForTenant(ctx, tenant)
	if err != nil {
		tracing.Fail(span, err)
		return report, err
	}
	rows, err := store.QueryAll(ctx, st, TypedSubjectsQuery())
	if err != nil {
		tracing.Fail(span, err)
		return report, fmt.Errorf("find typed subjects: %w", err)
	}

	var patch changeset.Patch
	for _, b := range rows {
		if len(patch.Insert) >= c.batch {
			break
		}
		s := b["s"]
		if c.ns.IsTransaction(s.Value) {
			continue
		}
		report.Scanned++
		own, err := store.StatementsAbout(ctx, st, s)
		if err != nil {
			tracing.Fail(span, err)
			return report, fmt.Errorf("read statements of %s: %w", s, err)
		}
		g := rdf.NewGraph(own...)
		if Classified(g, s, c.ns) {
			continue
		}
		if class, ok := Of(g, s, c.ns); ok {
			patch.Insert = append(patch.Insert, rdf.NewStatement(s, rdf.Type, class))
		}
	}
	if patch.IsEmpty() {
		return report, nil
	}

	cs, err := changeset.New(tenant, c.ns).Apply(patch)
	if err != nil {
		return report, err
	}
	out := c.committer.Commit(ctx, st, cs)
	if !out.Succeeded() {
		err := fmt.Errorf("commit failed: %s", out.FailureReason())
		tracing.Fail(span, err)
		return report, err
	}
	report.Classified = len(patch.Insert)
	c.log.Info("local classes assigned",
		slog.String("tenant", tenant),
		slog.Int("scanned", report.Scanned),
		slog.Int("classified", report.Classified),
		slog.String("tx", out.ID().Value))
	return report, nil
}
