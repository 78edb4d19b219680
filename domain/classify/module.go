package classify

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
)

// Module provides the type coercion job.
var Module = fx.Module("classify",
	fx.Provide(func(registry store.Registry, committer *commit.Committer, cfg *config.Config, log *slog.Logger) *Coercer {
		return NewCoercer(registry, committer, cfg.Namespace.Namespace(), cfg.Coercion.BatchSize, log)
	}),
)
