package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emergent-company/graphmerge/domain/classify"
	"github.com/emergent-company/graphmerge/domain/replace"
	"github.com/emergent-company/graphmerge/domain/sweep"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// Sweeper runs one sweep pass.
type Sweeper interface {
	Run(ctx context.Context, tenants ...string) ([]sweep.Report, error)
}

// SweepTask runs the duplicate sweep over every tenant
type SweepTask struct {
	sweeper Sweeper
	log     *slog.Logger
}

// NewSweepTask creates a new sweep task
func NewSweepTask(sweeper Sweeper, log *slog.Logger) *SweepTask {
	return &SweepTask{
		sweeper: sweeper,
		log:     log.With(logger.Scope("scheduler.sweep")),
	}
}

// Run executes one pass. A pass that overlaps a running one is skipped
// without error.
func (t *SweepTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("starting sweep")

	reports, err := t.sweeper.Run(ctx)
	if errors.Is(err, sweep.ErrRunning) {
		t.log.Info("previous sweep still running, skipped")
		return nil
	}

	merged, failed := 0, 0
	for _, r := range reports {
		merged += r.Merged
		failed += r.Failed
	}
	if err != nil {
		return err
	}

	t.log.Info("sweep completed",
		slog.Int("tenants", len(reports)),
		slog.Int("merged", merged),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Replacer runs one identifier replacement pass.
type Replacer interface {
	Run(ctx context.Context, tenants ...string) ([]replace.Report, error)
}

// ReplaceTask moves blank node and external subjects of every tenant to
// local identifiers
type ReplaceTask struct {
	replacer Replacer
	log      *slog.Logger
}

// NewReplaceTask creates a new identifier replacement task
func NewReplaceTask(replacer Replacer, log *slog.Logger) *ReplaceTask {
	return &ReplaceTask{
		replacer: replacer,
		log:      log.With(logger.Scope("scheduler.replace")),
	}
}

// Run executes one pass. A pass that overlaps a running one is skipped
// without error.
func (t *ReplaceTask) Run(ctx context.Context) error {
	start := time.Now()
	reports, err := t.replacer.Run(ctx)
	if errors.Is(err, replace.ErrRunning) {
		t.log.Info("previous identifier replacement still running, skipped")
		return nil
	}
	if err != nil {
		return err
	}

	replaced, skipped := 0, 0
	for _, r := range reports {
		replaced += r.Replaced
		skipped += r.Skipped
	}
	t.log.Info("identifier replacement completed",
		slog.Int("tenants", len(reports)),
		slog.Int("replaced", replaced),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Coercer runs one type coercion pass.
type Coercer interface {
	Run(ctx context.Context, tenants ...string) ([]classify.Report, error)
}

// CoercionTask assigns local classes to the typed resources of every tenant
type CoercionTask struct {
	coercer Coercer
	log     *slog.Logger
}

// NewCoercionTask creates a new type coercion task
func NewCoercionTask(coercer Coercer, log *slog.Logger) *CoercionTask {
	return &CoercionTask{
		coercer: coercer,
		log:     log.With(logger.Scope("scheduler.coercion")),
	}
}

// Run executes one pass.
func (t *CoercionTask) Run(ctx context.Context) error {
	reports, err := t.coercer.Run(ctx)
	if errors.Is(err, classify.ErrRunning) {
		t.log.Info("previous type coercion still running, skipped")
		return nil
	}
	if err != nil {
		return err
	}
	classified := 0
	for _, r := range reports {
		classified += r.Classified
	}
	t.log.Info("type coercion completed",
		slog.Int("tenants", len(reports)),
		slog.Int("classified", classified))
	return nil
}
