// Package health serves the liveness, readiness and diagnostics probes and
// the Prometheus endpoint.
package health

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Module provides the probe handlers and mounts their routes.
var Module = fx.Module("health",
	fx.Provide(NewHandler, NewMetricsHandler),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes mounts the probes at the root and under /api.
func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler) {
	for _, prefix := range []string{"", "/api"} {
		e.GET(prefix+"/health", h.Health)
	}
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/debug", h.Debug)
	e.GET("/api/diagnostics", h.Diagnose)

	e.GET("/metrics", m.Prometheus)
	e.GET("/api/metrics/scheduler", m.SchedulerMetrics)
}
