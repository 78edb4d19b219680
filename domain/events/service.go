package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
)

// allTenants is the subscriber key of SubscribeAll.
const allTenants = "*"

// Callback receives one event. It runs on its own goroutine.
type Callback func(event EntityEvent)

type subscriber struct {
	id int
	fn Callback
}

// Service is an in-process event bus keyed by tenant
type Service struct {
	log         *slog.Logger
	mu          sync.RWMutex
	subscribers map[string][]subscriber
	nextID      int
	now         func() time.Time
}

// NewService creates a new events service
func NewService(log *slog.Logger) *Service {
	return &Service{
		log:         log.With(logger.Scope("events")),
		subscribers: make(map[string][]subscriber),
		now:         time.Now,
	}
}

// Subscribe registers fn for the events of one tenant. The returned function
// removes the subscription.
func (s *Service) Subscribe(tenant string, fn Callback) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers[tenant] = append(s.subscribers[tenant], subscriber{id: id, fn: fn})

	return func() { s.unsubscribe(tenant, id) }
}

// SubscribeAll registers fn for the events of every tenant.
func (s *Service) SubscribeAll(fn Callback) func() {
	return s.Subscribe(allTenants, fn)
}

func (s *Service) unsubscribe(tenant string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[tenant]
	for i, sub := range subs {
		if sub.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subscribers, tenant)
		return
	}
	s.subscribers[tenant] = subs
}

// Emit delivers event to the tenant's subscribers and to the SubscribeAll
// subscribers. Delivery is asynchronous and Emit never blocks on a
// subscriber.
func (s *Service) Emit(event EntityEvent) {
	if event.Timestamp == "" {
		event.Timestamp = s.now().UTC().Format(time.RFC3339)
	}

	s.mu.RLock()
	targets := make([]Callback, 0, len(s.subscribers[event.Tenant])+len(s.subscribers[allTenants]))
	for _, sub := range s.subscribers[event.Tenant] {
		targets = append(targets, sub.fn)
	}
	if event.Tenant != allTenants {
		for _, sub := range s.subscribers[allTenants] {
			targets = append(targets, sub.fn)
		}
	}
	s.mu.RUnlock()

	metrics.EventsEmitted.WithLabelValues(string(event.Type)).Inc()

	s.log.Debug("emitting event",
		slog.String("type", string(event.Type)),
		slog.String("tenant", event.Tenant),
		slog.String("tx", event.TransactionID),
		slog.Int("subscribers", len(targets)))

	for _, fn := range targets {
		go s.deliver(fn, event)
	}
}

func (s *Service) deliver(fn Callback, event EntityEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event subscriber panicked",
				slog.String("type", string(event.Type)),
				slog.String("tenant", event.Tenant),
				slog.Any("panic", r))
		}
	}()
	fn(event)
}

// EmitCreated emits an entity.created event for a committed transaction
func (s *Service) EmitCreated(tenant, txID string, resources []string) {
	s.emit(EventTypeCreated, tenant, txID, resources)
}

// EmitUpdated emits an entity.updated event for a committed transaction
func (s *Service) EmitUpdated(tenant, txID string, resources []string) {
	s.emit(EventTypeUpdated, tenant, txID, resources)
}

// EmitDeleted emits an entity.deleted event for a committed transaction
func (s *Service) EmitDeleted(tenant, txID string, resources []string) {
	s.emit(EventTypeDeleted, tenant, txID, resources)
}

func (s *Service) emit(typ EntityEventType, tenant, txID string, resources []string) {
	s.Emit(EntityEvent{
		Type:          typ,
		Tenant:        tenant,
		TransactionID: txID,
		Resources:     resources,
		Timestamp:     s.now().UTC().Format(time.RFC3339),
	})
}

// GetSubscriberCount returns the number of subscribers of one tenant
func (s *Service) GetSubscriberCount(tenant string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[tenant])
}

// GetTotalSubscriberCount returns the number of subscribers across all
// tenants, SubscribeAll subscribers included
func (s *Service) GetTotalSubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, subs := range s.subscribers {
		total += len(subs)
	}
	return total
}
