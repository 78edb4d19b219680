// Package replace moves stored subjects that do not follow the local
// identifier scheme, blank nodes and external IRIs, to local identifiers and
// relinks every statement that points at them.
package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
	"github.com/emergent-company/graphmerge/pkg/tracing"
)

// ErrRunning is returned when a pass is requested while another one runs.
var ErrRunning = errors.New("identifier replacement already running")

// DefaultBatchSize caps the subjects replaced per tenant and pass.
const DefaultBatchSize = 5000

const jobName = "replace_identifiers"

// Report summarizes one tenant's pass. Skipped counts blank nodes without
// rdf:type, which cannot be identified.
type Report struct {
	Tenant     string        `json:"tenant"`
	Candidates int           `json:"candidates"`
	Replaced   int           `json:"replaced"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Replacer runs replacement passes. At most one pass runs at a time.
type Replacer struct {
	registry  store.Registry
	committer *commit.Committer
	ns        ident.Namespace
	batch     int
	running   atomic.Bool
	log       *slog.Logger
}

// New returns a replacer. A batch size of zero means DefaultBatchSize.
func New(registry store.Registry, committer *commit.Committer, ns ident.Namespace, batch int, log *slog.Logger) *Replacer {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Replacer{
		registry:  registry,
		committer: committer,
		ns:        ns,
		batch:     batch,
		log:       log.With(logger.Scope("replace")),
	}
}

// Running reports whether a pass is in flight.
func (r *Replacer) Running() bool { return r.running.Load() }

// Run replaces identifiers in the given tenants, or in every known tenant
// when none are given. One tenant's failure does not stop the others.
func (r *Replacer) Run(ctx context.Context, tenants ...string) ([]Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.JobRuns.WithLabelValues(jobName, "skipped").Inc()
		return nil, ErrRunning
	}
	defer r.running.Store(false)

	if len(tenants) == 0 {
		tenants = r.registry.Tenants()
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
		rep, err := r.replaceTenant(ctx, tenant)
		reports = append(reports, rep)
		if err != nil {
			r.log.Error("identifier replacement failed for tenant",
				slog.String("tenant", tenant),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		metrics.JobRuns.WithLabelValues(jobName, "failed").Inc()
	} else {
		metrics.JobRuns.WithLabelValues(jobName, "completed").Inc()
	}
	return reports, err
}

// SubjectsQuery lists the distinct typed subjects of the store.
func SubjectsQuery() store.Query {
	return store.Query{
		Select:   []string{"s"},
		Distinct: true,
		Where: []store.Pattern{
			{Subject: store.Var("s"), Predicate: store.Const(rdf.Type), Object: store.Var("type")},
		},
		OrderBy: []string{"s"},
	}
}

// Candidate reports whether a stored subject has to move to a local
// identifier.
func Candidate(s rdf.Term, ns ident.Namespace) bool {
	switch {
	case s.IsBlank():
		return true
	case s.IsIRI():
		return !ns.IsLocal(s.Value) && !ns.IsTransaction(s.Value)
	default:
		return false
	}
}

func (r *Replacer) replaceTenant(ctx context.Context, tenant string) (report Report, err error) {
	report.Tenant = tenant
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	ctx, span := tracing.Start(ctx, "replace.tenant", tracing.KeyTenant.String(tenant))
	defer span.End()

	st, err := r.registry.ForTenant(ctx, tenant)
	if err != nil {
		tracing.Fail(span, err)
		return report, err
	}
	rows, err := store.QueryAll(ctx, st, SubjectsQuery())
	if err != nil {
		tracing.Fail(span, err)
		return report, fmt.Errorf("find subjects: %w", err)
	}

	for _, b := range rows {
		s := b["s"]
		if !Candidate(s, r.ns) {
			continue
		}
		if report.Candidates == r.batch {
			break
		}
		report.Candidates++

		res, err := r.replace(ctx, st, tenant, s)
		if err != nil {
			tracing.Fail(span, err)
			return report, err
		}
		switch res {
		case outcomeReplaced:
			report.Replaced++
			metrics.IdentifiersReplaced.Inc()
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
		}
	}

	if report.Candidates > 0 {
		r.log.Info("identifier replacement finished for tenant",
			slog.String("tenant", tenant),
			slog.Int("candidates", report.Candidates),
			slog.Int("replaced", report.Replaced),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed))
	}
	return report, nil
}

type outcome int

const (
	outcomeReplaced outcome = iota
	outcomeSkipped
	outcomeFailed
)

// replace moves s to its local identifier in one transaction: the
// statements of s are reinserted under the new subject and every statement
// referencing s is relinked.
func (r *Replacer) replace(ctx context.Context, st store.Store, tenant string, s rdf.Term) (outcome, error) {
	own, err := store.StatementsAbout(ctx, st, s)
	if err != nil {
		return outcomeFailed, fmt.Errorf("read statements of %s: %w", s, err)
	}
	g := rdf.NewGraph(own...)

	var local rdf.Term
	for _, m := range identifiers.Assign(g, r.ns).Mappings {
		if m.Old == s {
			local = m.New
		}
	}
	if local.IsZero() {
		r.log.Debug("subject has no rdf:type, left as is", slog.String("subject", s.String()))
		return outcomeSkipped, nil
	}

	patch := changeset.Patch{
		Insert: g.Rewrite(s, local).Statements(),
		Remove: own,
	}
	if s.IsIRI() {
		patch.Insert = append(patch.Insert, rdf.NewStatement(local, rdf.SameAs, s))
	}

	refs, err := store.StatementsReferencing(ctx, st, s)
	if err != nil {
		return outcomeFailed, fmt.Errorf("read references to %s: %w", s, err)
	}
	for _, ref := range refs {
		if ref.Subject == s {
			continue
		}
		patch.Remove = append(patch.Remove, ref)
		patch.Update = append(patch.Update, rdf.NewStatement(ref.Subject, ref.Predicate, local))
	}

	cs, err := changeset.New(tenant, r.ns).Apply(patch)
	if err != nil {
		return outcomeFailed, err
	}
	out := r.committer.Commit(ctx, st, cs)
	if !out.Succeeded() {
		r.log.Warn("identifier replacement commit failed, subject kept for the next pass",
			slog.String("tenant", tenant),
			slog.String("subject", s.String()),
			slog.String("reason", out.FailureReason()))
		return outcomeFailed, nil
	}
	r.log.Debug("identifier replaced",
		slog.String("tenant", tenant),
		slog.String("subject", s.String()),
		slog.String("local", local.Value),
		slog.Int("references", len(refs)))
	return outcomeReplaced, nil
}
