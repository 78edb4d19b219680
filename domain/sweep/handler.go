package sweep

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/apperror"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// Handler exposes on-demand sweep passes.
type Handler struct {
	sweeper  *Sweeper
	registry store.Registry
	log      *slog.Logger
	// base outlives the request for background passes
	base context.Context
}

// NewHandler creates a new sweep handler.
func NewHandler(sweeper *Sweeper, registry store.Registry, log *slog.Logger) *Handler {
	return &Handler{
		sweeper:  sweeper,
		registry: registry,
		log:      log.With(logger.Scope("sweep.handler")),
		base:     context.Background(),
	}
}

// RunResponse is the response of POST /api/sweep.
type RunResponse struct {
	Status  string   `json:"status"`
	Reports []Report `json:"reports,omitempty"`
}

// Run starts a pass over the tenants named by repeated "tenant" query
// parameters, or over every tenant. With wait=true the pass runs within the
// request and the reports are returned; otherwise it runs in the background
// and the handler answers 202.
// POST /api/sweep
func (h *Handler) Run(c echo.Context) error {
	tenants := make([]string, 0, len(c.QueryParams()["tenant"]))
	for _, t := range c.QueryParams()["tenant"] {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if !slices.Contains(h.registry.Tenants(), t) {
			return apperror.ErrUnknownTenant.WithMessage("tenant " + t + " not found")
		}
		tenants = append(tenants, t)
	}

	if h.sweeper.Running() {
		return apperror.ErrSweepRunning
	}

	if c.QueryParam("wait") == "true" {
		reports, err := h.sweeper.Run(c.Request().Context(), tenants...)
		if errors.Is(err, ErrRunning) {
			return apperror.ErrSweepRunning
		}
		if err != nil {
			return apperror.NewInternal("sweep failed", err).WithDetails(map[string]any{"reports": reports})
		}
		return c.JSON(http.StatusOK, RunResponse{Status: "completed", Reports: reports})
	}

	go func() {
		if _, err := h.sweeper.Run(h.base, tenants...); err != nil && !errors.Is(err, ErrRunning) {
			h.log.Warn("on-demand sweep failed", logger.Error(err))
		}
	}()
	return c.JSON(http.StatusAccepted, RunResponse{Status: "started"})
}

// Status reports whether a pass is running.
// GET /api/sweep
func (h *Handler) Status(c echo.Context) error {
	status := "idle"
	if h.sweeper.Running() {
		status = "running"
	}
	return c.JSON(http.StatusOK, RunResponse{Status: status})
}

// RegisterRoutes registers the sweep routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/sweep")
	g.POST("", h.Run)
	g.GET("", h.Status)
}
