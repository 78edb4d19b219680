package postprocess

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
)

// Module subscribes the postprocessors to the event bus.
var Module = fx.Module("postprocess",
	fx.Provide(func(registry store.Registry, committer *commit.Committer, cfg *config.Config, log *slog.Logger) *Processors {
		return New(registry, committer, cfg.Namespace.Namespace(), log)
	}),
	fx.Invoke(RegisterLifecycle),
)

// RegisterLifecycle subscribes on start and drains runs in flight on stop.
func RegisterLifecycle(lc fx.Lifecycle, p *Processors, bus *events.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Start(bus)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Stop()
			return nil
		},
	})
}
