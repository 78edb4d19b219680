package events

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/internal/config"
)

// Module provides the bus and the SSE stream. Streams without a tenant
// follow the default tenant.
var Module = fx.Module("events",
	fx.Provide(
		NewService,
		func(svc *Service, cfg *config.Config, log *slog.Logger) *Handler {
			return NewHandler(svc, cfg.Store.DefaultTenant, log)
		},
	),
	fx.Invoke(registerStream),
)

func registerStream(lc fx.Lifecycle, e *echo.Echo, h *Handler, log *slog.Logger) {
	RegisterRoutesManual(e, h)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing event streams", slog.Int("connections", h.count()))
			h.Stop()
			return nil
		},
	})
}

// RegisterRoutesManual mounts the stream routes on e.
func RegisterRoutesManual(e *echo.Echo, h *Handler) {
	g := e.Group("/api/events")
	g.GET("/stream", h.HandleStream)
	g.GET("/connections/count", h.HandleConnectionsCount)
}
