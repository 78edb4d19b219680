package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emergent-company/graphmerge/internal/server"
	"github.com/emergent-company/graphmerge/pkg/apperror"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

const (
	// HeartbeatInterval is how often each stream receives a heartbeat
	HeartbeatInterval = 30 * time.Second

	// QueueSize bounds the events buffered for one slow client. Events
	// beyond it are dropped for that client only.
	QueueSize = 64
)

// connection is one open stream. Only the stream's own request goroutine
// writes to the response.
type connection struct {
	id      string
	tenant  string
	types   map[EntityEventType]bool
	queue   chan EntityEvent
	dropped atomic.Int64
}

// offer queues event without blocking the bus.
func (c *connection) offer(event EntityEvent) bool {
	if len(c.types) > 0 && !c.types[event.Type] {
		return true
	}
	select {
	case c.queue <- event:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Handler streams entity events over SSE
type Handler struct {
	svc           *Service
	log           *slog.Logger
	defaultTenant string
	heartbeat     time.Duration

	mu          sync.RWMutex
	connections map[string]*connection

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new events handler. Streams without a tenant
// subscribe to defaultTenant.
func NewHandler(svc *Service, defaultTenant string, log *slog.Logger) *Handler {
	return &Handler{
		svc:           svc,
		log:           log.With(logger.Scope("events.handler")),
		defaultTenant: defaultTenant,
		heartbeat:     HeartbeatInterval,
		connections:   make(map[string]*connection),
		stopped:       make(chan struct{}),
	}
}

// Stop ends every open stream
func (h *Handler) Stop() {
	h.stopOnce.Do(func() { close(h.stopped) })
}

// HandleStream handles GET /api/events/stream. The tenant comes from the
// X-Tenant-ID header or the tenant query parameter; types optionally
// restricts the stream to a comma separated list of event types.
func (h *Handler) HandleStream(c echo.Context) error {
	tenant := server.Tenant(c, h.defaultTenant)
	if tenant == "" {
		return apperror.NewBadRequest("missing tenant")
	}
	types, err := parseTypes(c.QueryParam("types"))
	if err != nil {
		return err
	}

	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return apperror.ErrInternal.WithMessage("streaming not supported")
	}

	conn := &connection{
		id:     uuid.NewString(),
		tenant: tenant,
		types:  types,
		queue:  make(chan EntityEvent, QueueSize),
	}
	h.add(conn)
	defer h.remove(conn)

	unsubscribe := h.svc.Subscribe(tenant, func(event EntityEvent) {
		if !conn.offer(event) {
			h.log.Warn("client queue full, event dropped",
				slog.String("connection_id", conn.id),
				slog.String("tx", event.TransactionID))
		}
	})
	defer unsubscribe()

	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.log.With(slog.String("connection_id", conn.id), slog.String("tenant", tenant))
	log.Info("SSE connection established")

	send := func(name string, data any) error {
		if err := writeEvent(w, name, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send("connected", ConnectedEvent{ConnectionID: conn.id, Tenant: tenant}); err != nil {
		log.Warn("failed to send connected event", logger.Error(err))
		return nil
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("SSE connection closed by client", slog.Int64("dropped", conn.dropped.Load()))
			return nil
		case <-h.stopped:
			log.Info("SSE connection closed by server")
			return nil
		case event := <-conn.queue:
			if err := send(string(event.Type), event); err != nil {
				log.Warn("failed to send event", logger.Error(err))
				return nil
			}
		case now := <-ticker.C:
			hb := HeartbeatEvent{Timestamp: now.UTC().Format(time.RFC3339), Connections: h.count()}
			if err := send("heartbeat", hb); err != nil {
				log.Warn("failed to send heartbeat", logger.Error(err))
				return nil
			}
		}
	}
}

// HandleConnectionsCount handles GET /api/events/connections/count
func (h *Handler) HandleConnectionsCount(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"count": h.count()})
}

func (h *Handler) add(conn *connection) {
	h.mu.Lock()
	h.connections[conn.id] = conn
	h.mu.Unlock()
}

func (h *Handler) remove(conn *connection) {
	h.mu.Lock()
	delete(h.connections, conn.id)
	h.mu.Unlock()
}

func (h *Handler) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func parseTypes(raw string) (map[EntityEventType]bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	types := make(map[EntityEventType]bool)
	for _, part := range strings.Split(raw, ",") {
		t := EntityEventType(strings.TrimSpace(part))
		if !t.Valid() {
			return nil, apperror.NewBadRequest(fmt.Sprintf("unknown event type %q", t))
		}
		types[t] = true
	}
	return types, nil
}

// writeEvent writes one named SSE event with a JSON payload.
func writeEvent(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
