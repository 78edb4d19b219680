// Package sweep finds entities that share a type and a characteristic value
// in the persisted graph and merges them into one.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

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
var ErrRunning = errors.New("sweep already running")

// Config tunes a sweep pass.
type Config struct {
	// Predicates are the characteristic predicates in priority order.
	Predicates []rdf.Term
	// CandidateLimit caps the duplicate groups fetched per query.
	CandidateLimit int
	// MaxRounds caps how often one predicate is re-queried when a page
	// comes back full.
	MaxRounds int
	// MergesPerSecond paces duplicate merges. Zero disables pacing.
	MergesPerSecond float64
	// QueryTimeout bounds each candidate query.
	QueryTimeout time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Predicates: []rdf.Term{
			rdf.Label,
			rdf.PrefLabel,
			rdf.DCTermsIdentifier,
			rdf.DCIdentifier,
			rdf.SchemaIdentifier,
		},
		CandidateLimit:  10,
		MaxRounds:       10,
		MergesPerSecond: 20,
		QueryTimeout:    time.Minute,
	}
}

// Candidate is a group of entities sharing a type and a predicate value.
type Candidate struct {
	Type      rdf.Term
	Predicate rdf.Term
	Value     rdf.Term
}

// Report summarizes one tenant's pass.
type Report struct {
	Tenant     string        `json:"tenant"`
	Candidates int           `json:"candidates"`
	Merged     int           `json:"merged"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Sweeper runs sweep passes. At most one pass runs at a time.
type Sweeper struct {
	registry  store.Registry
	committer *commit.Committer
	ns        ident.Namespace
	cfg       Config
	limiter   *rate.Limiter
	running   atomic.Bool
	log       *slog.Logger
}

// New returns a sweeper. Zero values in cfg fall back to DefaultConfig.
func New(registry store.Registry, committer *commit.Committer, ns ident.Namespace, cfg Config, log *slog.Logger) *Sweeper {
	def := DefaultConfig()
	if len(cfg.Predicates) == 0 {
		cfg.Predicates = def.Predicates
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	limit := rate.Inf
	if cfg.MergesPerSecond > 0 {
		limit = rate.Limit(cfg.MergesPerSecond)
	}
	return &Sweeper{
		registry:  registry,
		committer: committer,
		ns:        ns,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log.With(logger.Scope("sweep")),
	}
}

// Running reports whether a pass is in flight.
func (s *Sweeper) Running() bool { return s.running.Load() }

// Run sweeps the given tenants, or every known tenant when none are given.
// A pass requested while another runs is skipped with ErrRunning. Failures
// of one tenant do not stop the others; they are joined into the error.
func (s *Sweeper) Run(ctx context.Context, tenants ...string) ([]Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		s.log.Info("sweep already running, skipping")
		return nil, ErrRunning
	}
	defer s.running.Store(false)

	if len(tenants) == 0 {
		tenants = s.registry.Tenants()
	}

	start := time.Now()
	var (
		reports []Report
		errs    []error
	)
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := s.sweepTenant(ctx, tenant)
		reports = append(reports, r)
		if err != nil {
			s.log.Error("sweep failed for tenant",
				slog.String("tenant", tenant),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	err := errors.Join(errs...)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("failed").Inc()
	} else {
		metrics.SweepRuns.WithLabelValues("completed").Inc()
	}
	return reports, err
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenant string) (Report, error) {
	report := Report{Tenant: tenant}
	start := time.Now()

	ctx, span := tracing.Start(ctx, "sweep.tenant", tracing.KeyTenant.String(tenant))
	defer span.End()

	st, err := s.registry.ForTenant(ctx, tenant)
	if err != nil {
		tracing.Fail(span, err)
		report.Duration = time.Since(start)
		return report, err
	}

	for _, pred := range s.cfg.Predicates {
		for round := 0; round < s.cfg.MaxRounds; round++ {
			candidates, err := s.discover(ctx, st, pred)
			if err != nil {
				tracing.Fail(span, err)
				report.Duration = time.Since(start)
				return report, err
			}
			report.Candidates += len(candidates)

			merged := 0
			for _, c := range candidates {
				n, failed, err := s.mergeCandidate(ctx, st, tenant, c)
				merged += n
				report.Merged += n
				report.Failed += failed
				if err != nil {
					tracing.Fail(span, err)
					report.Duration = time.Since(start)
					return report, err
				}
			}
			// A full page may hide more groups; stop once nothing moves.
			if len(candidates) < s.cfg.CandidateLimit || merged == 0 {
				break
			}
		}
	}

	report.Duration = time.Since(start)
	s.log.Info("sweep finished for tenant",
		slog.String("tenant", tenant),
		slog.Int("candidates", report.Candidates),
		slog.Int("merged", report.Merged),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// discover groups entities by type and predicate value, keeping groups with
// more than one member.
func (s *Sweeper) discover(ctx context.Context, st store.Store, pred rdf.Term) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "sweep.discover")
	defer span.End()

	var classes []rdf.Term
	for _, c := range s.ns.Classes() {
		classes = append(classes, rdf.IRI(c))
	}
	rows, err := store.QueryAll(ctx, st, CandidateQuery(pred, s.cfg.CandidateLimit, classes...))
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("discover duplicates of %s: %w", pred, err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, b := range rows {
		out = append(out, Candidate{Type: b["type"], Predicate: pred, Value: b["value"]})
	}
	return out, nil
}

// CandidateQuery groups the subjects of pred by type and value. Types in
// exclude never form a group.
func CandidateQuery(pred rdf.Term, limit int, exclude ...rdf.Term) store.Query {
	filters := []store.Filter{{Op: store.FilterIsIRI, Var: "s"}}
	for _, t := range exclude {
		filters = append(filters, store.Filter{Op: store.FilterNotEqual, Var: "type", Value: t})
	}
	return store.Query{
		Where: []store.Pattern{
			{Subject: store.Var("s"), Predicate: store.Const(rdf.Type), Object: store.Var("type")},
			{Subject: store.Var("s"), Predicate: store.Const(pred), Object: store.Var("value")},
		},
		Filters:          filters,
		GroupBy:          []string{"type", "value"},
		CountAs:          "count",
		HavingCountAbove: 1,
		OrderBy:          []string{"type", "value"},
		Limit:            limit,
	}
}

// MembersQuery lists the entities of a candidate group, comparing values by
// their lexical form.
func MembersQuery(c Candidate) store.Query {
	return store.Query{
		Select:   []string{"id"},
		Distinct: true,
		Where: []store.Pattern{
			{Subject: store.Var("id"), Predicate: store.Const(rdf.Type), Object: store.Const(c.Type)},
			{Subject: store.Var("id"), Predicate: store.Const(c.Predicate), Object: store.Var("value")},
		},
		Filters: []store.Filter{
			{Op: store.FilterIsIRI, Var: "id"},
			{Op: store.FilterStrEqual, Var: "value", Value: c.Value},
		},
		OrderBy: []string{"id"},
	}
}

// mergeCandidate confirms a group and folds every member into the canonical
// one. It returns how many members were merged and how many failed.
func (s *Sweeper) mergeCandidate(ctx context.Context, st store.Store, tenant string, c Candidate) (int, int, error) {
	ctx, span := tracing.Start(ctx, "sweep.merge")
	defer span.End()

	rows, err := store.QueryAll(ctx, st, MembersQuery(c))
	if err != nil {
		return 0, 0, fmt.Errorf("confirm %s %s: %w", c.Type, c.Value, err)
	}
	members := make([]rdf.Term, 0, len(rows))
	for _, b := range rows {
		members = append(members, b["id"])
	}
	if len(members) < 2 {
		return 0, 0, nil
	}

	canonical, err := s.canonical(ctx, st, members)
	if err != nil {
		return 0, 0, err
	}

	merged, failed := 0, 0
	for _, dup := range members {
		if dup == canonical {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return merged, failed, err
		}
		ok, err := s.mergeInto(ctx, st, tenant, dup, canonical)
		if err != nil {
			return merged, failed, err
		}
		if ok {
			merged++
			metrics.SweepMerged.Inc()
		} else {
			failed++
		}
	}
	return merged, failed, nil
}

// canonical picks the member created first. Members without a readable
// dcterms:created lose against dated ones; ties go to the lowest id.
func (s *Sweeper) canonical(ctx context.Context, st store.Store, members []rdf.Term) (rdf.Term, error) {
	var (
		best        rdf.Term
		bestCreated time.Time
	)
	for _, m := range members {
		created, err := createdAt(ctx, st, m)
		if err != nil {
			return rdf.Term{}, err
		}
		if best.IsZero() || earlier(created, m, bestCreated, best) {
			best, bestCreated = m, created
		}
	}
	return best, nil
}

func earlier(t time.Time, id rdf.Term, bestT time.Time, bestID rdf.Term) bool {
	switch {
	case !t.IsZero() && bestT.IsZero():
		return true
	case t.IsZero() && !bestT.IsZero():
		return false
	case !t.Equal(bestT):
		return t.Before(bestT)
	default:
		return id.Value < bestID.Value
	}
}

func createdAt(ctx context.Context, st store.Store, id rdf.Term) (time.Time, error) {
	rows, err := store.QueryAll(ctx, st, store.Query{
		Select: []string{"created"},
		Where: []store.Pattern{
			{Subject: store.Const(id), Predicate: store.Const(rdf.DCTermsCreated), Object: store.Var("created")},
		},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("read creation date of %s: %w", id, err)
	}
	var earliest time.Time
	for _, b := range rows {
		t, err := time.Parse(time.RFC3339, b["created"].Value)
		if err != nil {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest, nil
}

// mergeInto reroutes every reference to dup onto canonical and then deletes
// dup. The two steps are separate commits; a failure between them leaves a
// duplicate the next pass detects again.
func (s *Sweeper) mergeInto(ctx context.Context, st store.Store, tenant string, dup, canonical rdf.Term) (bool, error) {
	refs, err := store.StatementsReferencing(ctx, st, dup)
	if err != nil {
		return false, fmt.Errorf("read references to %s: %w", dup, err)
	}
	var patch changeset.Patch
	for _, ref := range refs {
		if ref.Subject == dup {
			continue
		}
		patch.Remove = append(patch.Remove, ref)
		patch.Update = append(patch.Update, rdf.NewStatement(ref.Subject, ref.Predicate, canonical))
	}
	if !patch.IsEmpty() {
		if !s.commit(ctx, st, tenant, patch, "reroute", dup) {
			return false, nil
		}
	}

	own, err := store.StatementsAbout(ctx, st, dup)
	if err != nil {
		return false, fmt.Errorf("read statements of %s: %w", dup, err)
	}
	if len(own) > 0 {
		if !s.commit(ctx, st, tenant, changeset.Patch{Remove: own}, "delete", dup) {
			return false, nil
		}
	}

	s.log.Debug("merged duplicate",
		slog.String("tenant", tenant),
		slog.String("duplicate", dup.String()),
		slog.String("canonical", canonical.String()),
		slog.Int("references", len(patch.Update)))
	return true, nil
}

func (s *Sweeper) commit(ctx context.Context, st store.Store, tenant string, p changeset.Patch, step string, dup rdf.Term) bool {
	cs, err := changeset.New(tenant, s.ns).Apply(p)
	if err != nil {
		s.log.Error("failed to build sweep changeset", slog.String("step", step), logger.Error(err))
		return false
	}
	out := s.committer.Commit(ctx, st, cs)
	if !out.Succeeded() {
		s.log.Warn("sweep commit failed, duplicate kept for the next pass",
			slog.String("tenant", tenant),
			slog.String("step", step),
			slog.String("duplicate", dup.String()),
			slog.String("reason", out.FailureReason()))
		return false
	}
	return true
}
