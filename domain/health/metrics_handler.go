package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emergent-company/graphmerge/domain/scheduler"
)

// MetricsHandler serves Prometheus metrics and scheduler state
type MetricsHandler struct {
	scheduler *scheduler.Scheduler
	prom      http.Handler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(s *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{
		scheduler: s,
		prom:      promhttp.Handler(),
	}
}

// Prometheus serves the default registry
// GET /metrics
func (h *MetricsHandler) Prometheus(c echo.Context) error {
	h.prom.ServeHTTP(c.Response(), c.Request())
	return nil
}

// SchedulerMetricsResponse describes the registered tasks
type SchedulerMetricsResponse struct {
	Running   bool                 `json:"running"`
	Tasks     []scheduler.TaskInfo `json:"tasks"`
	Timestamp string               `json:"timestamp"`
}

// SchedulerMetrics returns the registered tasks and their next run
// GET /api/metrics/scheduler
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	tasks := h.scheduler.GetTaskInfo()
	if tasks == nil {
		tasks = []scheduler.TaskInfo{}
	}
	return c.JSON(http.StatusOK, SchedulerMetricsResponse{
		Running:   h.scheduler.IsRunning(),
		Tasks:     tasks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
