// Package pipeline runs the ordered transformer chain that turns a submitted
// changeset into one ready to commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/tracing"
)

// ErrUnknownTransformer is returned when a definition names a transformer
// that is not registered.
var ErrUnknownTransformer = errors.New("unknown transformer")

// Params is what a transformer may use besides the changeset itself.
type Params struct {
	// Store gives read access to the tenant store.
	Store     store.Store
	Namespace ident.Namespace
	// Strict turns node-level MissingType warnings into request errors.
	Strict bool
}

// Transformer is one stage. Handle must not modify cs; it returns the next
// snapshot.
type Transformer interface {
	Name() string
	Handle(ctx context.Context, cs *changeset.Changeset, p Params) (*changeset.Changeset, error)
}

// Pipeline is an ordered list of transformers.
type Pipeline struct {
	stages []Transformer
	log    *slog.Logger
}

// New returns a pipeline running stages in order.
func New(log *slog.Logger, stages ...Transformer) *Pipeline {
	return &Pipeline{stages: stages, log: log.With(logger.Scope("pipeline"))}
}

// Build resolves names against the available transformers.
func Build(log *slog.Logger, names []string, available ...Transformer) (*Pipeline, error) {
	byName := make(map[string]Transformer, len(available))
	for _, t := range available {
		byName[t.Name()] = t
	}
	stages := make([]Transformer, 0, len(names))
	for _, n := range names {
		t, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownTransformer, n)
		}
		stages = append(stages, t)
	}
	return New(log, stages...), nil
}

// Names lists the stages in run order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Run passes cs through every stage. The first stage error stops the run.
func (p *Pipeline) Run(ctx context.Context, cs *changeset.Changeset, params Params) (*changeset.Changeset, error) {
	for _, stage := range p.stages {
		next, err := p.runStage(ctx, stage, cs, params)
		if err != nil {
			return nil, err
		}
		cs = next
	}
	return cs, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Transformer, cs *changeset.Changeset, params Params) (*changeset.Changeset, error) {
	ctx, span := tracing.Start(ctx, "pipeline."+stage.Name(),
		tracing.KeyStage.String(stage.Name()),
		tracing.KeyTenant.String(cs.Tenant()),
		tracing.KeyTransactionID.String(cs.ID().Value),
	)
	defer span.End()

	start := time.Now()
	next, err := stage.Handle(ctx, cs, params)
	metrics.StageDuration.WithLabelValues(stage.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageErrors.WithLabelValues(stage.Name()).Inc()
		tracing.Fail(span, err)
		p.log.Debug("stage failed",
			slog.String("stage", stage.Name()),
			slog.String("tx", cs.ID().Value),
			logger.Error(err))
		return nil, fmt.Errorf("%s: %w", stage.Name(), err)
	}
	return next, nil
}
