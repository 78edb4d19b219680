package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/version"
)

// Handler handles health check requests
type Handler struct {
	registry store.Registry
	cfg      *config.Config
	startAt  time.Time
}

// NewHandler creates a new health handler
func NewHandler(registry store.Registry, cfg *config.Config) *Handler {
	return &Handler{
		registry: registry,
		cfg:      cfg,
		startAt:  time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// ping checks the store of one tenant.
func (h *Handler) ping(ctx context.Context, tenant string) Check {
	start := time.Now()
	st, err := h.registry.ForTenant(ctx, tenant)
	if err == nil {
		err = st.Ping(ctx)
	}
	if err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Latency: time.Since(start).String()}
}

// Health returns the overall service health
// GET /health
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	storeCheck := h.ping(ctx, h.cfg.Store.DefaultTenant)

	overallStatus := storeCheck.Status
	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks: map[string]Check{
			"store": storeCheck,
		},
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, response)
}

// Healthz returns a simple health check (for k8s liveness probe)
// GET /healthz
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe). It pings the
// default tenant store.
// GET /ready
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if check := h.ping(ctx, h.cfg.Store.DefaultTenant); check.Status != "healthy" {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Store unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns debug information (only outside production)
// GET /debug
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"version":     version.Info(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"store": map[string]any{
			"backend":        h.cfg.Store.Backend,
			"default_tenant": h.cfg.Store.DefaultTenant,
			"tenants":        h.registry.Tenants(),
			"audit":          h.cfg.Store.AuditEnabled,
		},
	})
}

// Diagnose pings the store of every known tenant
// GET /api/diagnostics
func (h *Handler) Diagnose(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tenants := make(map[string]Check)
	for _, t := range h.registry.Tenants() {
		tenants[t] = h.ping(ctx, t)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startAt).String(),
		"server": map[string]any{
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": mem.Alloc / 1024 / 1024,
			"memory_sys":   mem.Sys / 1024 / 1024,
			"num_cpu":      runtime.NumCPU(),
			"go_version":   runtime.Version(),
		},
		"tenants": tenants,
	})
}
