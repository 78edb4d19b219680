package events

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewService(t *testing.T) {
	svc := NewService(newTestLogger())

	assert.NotNil(t, svc)
	assert.NotNil(t, svc.log)
	assert.NotNil(t, svc.subscribers)
	assert.Empty(t, svc.subscribers)
}

func TestSubscribe(t *testing.T) {
	svc := NewService(newTestLogger())

	unsubscribe := svc.Subscribe("acme", func(event EntityEvent) {})
	assert.NotNil(t, unsubscribe)

	assert.Equal(t, 1, svc.GetSubscriberCount("acme"))
	assert.Equal(t, 1, svc.GetTotalSubscriberCount())

	unsubscribe()

	// The tenant entry is dropped with its last subscriber
	assert.Equal(t, 0, svc.GetSubscriberCount("acme"))
	assert.Equal(t, 0, svc.GetTotalSubscriberCount())
	assert.NotContains(t, svc.subscribers, "acme")
}

func TestSubscribe_MultipleSubscribers(t *testing.T) {
	svc := NewService(newTestLogger())

	unsub1 := svc.Subscribe("acme", func(event EntityEvent) {})
	unsub2 := svc.Subscribe("acme", func(event EntityEvent) {})
	unsub3 := svc.Subscribe("acme", func(event EntityEvent) {})

	assert.Equal(t, 3, svc.GetSubscriberCount("acme"))

	unsub2()
	assert.Equal(t, 2, svc.GetSubscriberCount("acme"))

	// Unsubscribing twice is harmless
	unsub2()
	assert.Equal(t, 2, svc.GetSubscriberCount("acme"))

	unsub1()
	unsub3()
	assert.Equal(t, 0, svc.GetSubscriberCount("acme"))
}

func TestSubscribe_MultipleTenants(t *testing.T) {
	svc := NewService(newTestLogger())

	svc.Subscribe("acme", func(event EntityEvent) {})
	svc.Subscribe("acme", func(event EntityEvent) {})
	svc.Subscribe("globex", func(event EntityEvent) {})
	svc.SubscribeAll(func(event EntityEvent) {})

	assert.Equal(t, 2, svc.GetSubscriberCount("acme"))
	assert.Equal(t, 1, svc.GetSubscriberCount("globex"))
	assert.Equal(t, 4, svc.GetTotalSubscriberCount())
}

func TestEmit(t *testing.T) {
	svc := NewService(newTestLogger())

	var received EntityEvent
	var wg sync.WaitGroup
	wg.Add(1)

	svc.Subscribe("acme", func(event EntityEvent) {
		received = event
		wg.Done()
	})

	svc.Emit(EntityEvent{
		Type:          EventTypeCreated,
		Tenant:        "acme",
		TransactionID: "urn:pwid:meg:t:1",
		Resources:     []string{"urn:pwid:meg:e:a"},
	})

	wg.Wait()

	assert.Equal(t, EventTypeCreated, received.Type)
	assert.Equal(t, "acme", received.Tenant)
	assert.Equal(t, "urn:pwid:meg:t:1", received.TransactionID)
	assert.Equal(t, []string{"urn:pwid:meg:e:a"}, received.Resources)
	// A missing timestamp is filled in
	_, err := time.Parse(time.RFC3339, received.Timestamp)
	assert.NoError(t, err)
}

func TestEmit_NoSubscribers(t *testing.T) {
	svc := NewService(newTestLogger())

	assert.NotPanics(t, func() {
		svc.Emit(EntityEvent{Type: EventTypeCreated, Tenant: "nobody"})
	})
}

func TestEmit_MultipleSubscribers(t *testing.T) {
	svc := NewService(newTestLogger())

	var counter int32
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		svc.Subscribe("acme", func(event EntityEvent) {
			atomic.AddInt32(&counter, 1)
			wg.Done()
		})
	}

	svc.Emit(EntityEvent{Type: EventTypeUpdated, Tenant: "acme"})

	wg.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&counter))
}

func TestEmit_OnlyTargetTenant(t *testing.T) {
	svc := NewService(newTestLogger())

	var acmeCalled, globexCalled int32
	var wg sync.WaitGroup
	wg.Add(1)

	svc.Subscribe("acme", func(event EntityEvent) {
		atomic.AddInt32(&acmeCalled, 1)
		wg.Done()
	})
	svc.Subscribe("globex", func(event EntityEvent) {
		atomic.AddInt32(&globexCalled, 1)
	})

	svc.Emit(EntityEvent{Type: EventTypeCreated, Tenant: "acme"})

	wg.Wait()
	// Give a little time to ensure the other tenant's callback wasn't called
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&acmeCalled))
	assert.Equal(t, int32(0), atomic.LoadInt32(&globexCalled))
}

func TestEmit_SubscribeAllSeesEveryTenant(t *testing.T) {
	svc := NewService(newTestLogger())

	var mu sync.Mutex
	var tenants []string
	var wg sync.WaitGroup
	wg.Add(2)

	svc.SubscribeAll(func(event EntityEvent) {
		mu.Lock()
		tenants = append(tenants, event.Tenant)
		mu.Unlock()
		wg.Done()
	})

	svc.Emit(EntityEvent{Type: EventTypeCreated, Tenant: "acme"})
	svc.Emit(EntityEvent{Type: EventTypeUpdated, Tenant: "globex"})

	wg.Wait()
	assert.ElementsMatch(t, []string{"acme", "globex"}, tenants)
}

func TestEmit_DoesNotBlockOnSlowSubscriber(t *testing.T) {
	svc := NewService(newTestLogger())

	release := make(chan struct{})
	defer close(release)
	svc.Subscribe("acme", func(event EntityEvent) { <-release })

	done := make(chan struct{})
	go func() {
		svc.Emit(EntityEvent{Type: EventTypeCreated, Tenant: "acme"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a subscriber")
	}
}

func TestEmit_SubscriberPanicIsContained(t *testing.T) {
	svc := NewService(newTestLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	svc.Subscribe("acme", func(event EntityEvent) { panic("boom") })
	svc.Subscribe("acme", func(event EntityEvent) { wg.Done() })

	svc.Emit(EntityEvent{Type: EventTypeCreated, Tenant: "acme"})
	wg.Wait()
}

func TestEmitHelpers(t *testing.T) {
	tests := []struct {
		name string
		emit func(s *Service)
		want EntityEventType
	}{
		{
			name: "created",
			emit: func(s *Service) { s.EmitCreated("acme", "tx-1", []string{"a", "b"}) },
			want: EventTypeCreated,
		},
		{
			name: "updated",
			emit: func(s *Service) { s.EmitUpdated("acme", "tx-1", []string{"a", "b"}) },
			want: EventTypeUpdated,
		},
		{
			name: "deleted",
			emit: func(s *Service) { s.EmitDeleted("acme", "tx-1", []string{"a", "b"}) },
			want: EventTypeDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newTestLogger())
			fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			svc.now = func() time.Time { return fixed }

			events := make(chan EntityEvent, 1)
			svc.Subscribe("acme", func(event EntityEvent) { events <- event })

			tt.emit(svc)

			var got EntityEvent
			select {
			case got = <-events:
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
			require.Equal(t, tt.want, got.Type)
			assert.Equal(t, "acme", got.Tenant)
			assert.Equal(t, "tx-1", got.TransactionID)
			assert.Equal(t, []string{"a", "b"}, got.Resources)
			assert.Equal(t, "2024-03-01T12:00:00Z", got.Timestamp)
		})
	}
}

func TestGetSubscriberCount_UnknownTenant(t *testing.T) {
	svc := NewService(newTestLogger())

	assert.Equal(t, 0, svc.GetSubscriberCount("non-existent"))
	assert.Equal(t, 0, svc.GetTotalSubscriberCount())
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	svc := NewService(newTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := svc.Subscribe("acme", func(event EntityEvent) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}

	wg.Wait()

	assert.Equal(t, 0, svc.GetSubscriberCount("acme"))
}

func TestConcurrentEmit(t *testing.T) {
	svc := NewService(newTestLogger())

	var counter int32
	var wg sync.WaitGroup

	svc.Subscribe("acme", func(event EntityEvent) {
		atomic.AddInt32(&counter, 1)
		wg.Done()
	})

	numEvents := 50
	wg.Add(numEvents)

	for i := 0; i < numEvents; i++ {
		go svc.Emit(EntityEvent{Type: EventTypeUpdated, Tenant: "acme"})
	}

	wg.Wait()
	assert.Equal(t, int32(numEvents), atomic.LoadInt32(&counter))
}
