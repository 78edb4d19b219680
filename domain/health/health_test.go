package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/graphmerge/domain/scheduler"
	"github.com/emergent-company/graphmerge/internal/config"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/memstore"
)

type registry map[string]store.Store

func (r registry) ForTenant(_ context.Context, tenant string) (store.Store, error) {
	st, ok := r[tenant]
	if !ok {
		return nil, errors.New("unknown tenant")
	}
	return st, nil
}

func (r registry) Tenants() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	return out
}

func newEcho(reg store.Registry) *echo.Echo {
	cfg := &config.Config{Environment: "test"}
	cfg.Store.DefaultTenant = "default"
	cfg.Store.Backend = config.BackendMemory

	e := echo.New()
	RegisterRoutes(e, NewHandler(reg, cfg), NewMetricsHandler(scheduler.NewScheduler(slog.New(slog.DiscardHandler))))
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	closed := memstore.New()
	require.NoError(t, closed.Close())

	tests := []struct {
		name   string
		reg    registry
		status int
		state  string
	}{
		{name: "store reachable", reg: registry{"default": memstore.New()}, status: http.StatusOK, state: "healthy"},
		{name: "store closed", reg: registry{"default": closed}, status: http.StatusServiceUnavailable, state: "unhealthy"},
		{name: "default tenant unavailable", reg: registry{}, status: http.StatusServiceUnavailable, state: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newEcho(tt.reg), "/health")
			assert.Equal(t, tt.status, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.state, resp.Status)
			assert.Equal(t, tt.state, resp.Checks["store"].Status)
		})
	}
}

func TestReady(t *testing.T) {
	rec := get(newEcho(registry{"default": memstore.New()}), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	rec = get(newEcho(registry{}), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := get(newEcho(registry{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestDiagnose(t *testing.T) {
	rec := get(newEcho(registry{"a": memstore.New(), "b": memstore.New()}), "/api/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tenants map[string]Check `json:"tenants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tenants, 2)
	assert.Equal(t, "healthy", resp.Tenants["a"].Status)
}

func TestPrometheus(t *testing.T) {
	rec := get(newEcho(registry{}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestSchedulerMetrics(t *testing.T) {
	rec := get(newEcho(registry{}), "/api/metrics/scheduler")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SchedulerMetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Empty(t, resp.Tasks)
}
