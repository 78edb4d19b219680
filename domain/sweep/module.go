package sweep

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
)

// Module provides the sweeper.
var Module = fx.Module("sweep",
	fx.Provide(NewFromConfig),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// NewFromConfig builds the sweeper from SWEEP_* settings and the sweep
// predicates of the pipeline file.
func NewFromConfig(registry store.Registry, committer *commit.Committer, def *pipeline.Definition, cfg *config.Config, log *slog.Logger) *Sweeper {
	return New(registry, committer, cfg.Namespace.Namespace(), Config{
		Predicates:      def.SweepPredicates(),
		CandidateLimit:  cfg.Sweep.CandidateLimit,
		MaxRounds:       cfg.Sweep.MaxRounds,
		MergesPerSecond: cfg.Sweep.MergesPerSecond,
		QueryTimeout:    cfg.Sweep.QueryTimeout(),
	}, log)
}
