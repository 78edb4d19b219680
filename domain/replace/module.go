package replace

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
)

// Module provides the identifier replacer.
var Module = fx.Module("replace",
	fx.Provide(func(registry store.Registry, committer *commit.Committer, cfg *config.Config, log *slog.Logger) *Replacer {
		return New(registry, committer, cfg.Namespace.Namespace(), cfg.Replace.BatchSize, log)
	}),
)
