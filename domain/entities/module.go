package entities

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/classify"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/merge"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
)

// Module provides the entity request path.
var Module = fx.Module("entities",
	fx.Provide(NewPipeline),
	fx.Provide(func(registry store.Registry, p *pipeline.Pipeline, committer *commit.Committer, bus *events.Service, cfg *config.Config, log *slog.Logger) *Service {
		return NewService(registry, p, committer, bus, cfg.Namespace.Namespace(), log)
	}),
	fx.Provide(func(svc *Service, cfg *config.Config) *Handler {
		return NewHandler(svc, cfg.Store.DefaultTenant)
	}),
	fx.Invoke(RegisterRoutes),
)

// NewPipeline builds the transformer chain named by the pipeline file.
func NewPipeline(def *pipeline.Definition, log *slog.Logger) (*pipeline.Pipeline, error) {
	return pipeline.Build(log, def.Transformers, Transformers(log)...)
}

// Transformers returns every transformer the pipeline file may name.
func Transformers(log *slog.Logger) []pipeline.Transformer {
	return []pipeline.Transformer{
		identifiers.NewAssigner(log),
		merge.NewLocalMerger(log),
		merge.NewGraphMerger(log, 0),
		classify.NewTransformer(log),
	}
}
