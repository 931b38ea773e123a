package kernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"slate-core/internal/domain"
	"slate-core/internal/infra/logger"
)

func testEvent(agent string) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		AgentID: agent,
		From:    domain.StateUnloaded,
		To:      domain.StateLoading,
	}
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus(logger.Discard())
	var got []string
	b.Subscribe(func(domain.LifecycleEvent) { got = append(got, "first") })
	b.Subscribe(func(domain.LifecycleEvent) { got = append(got, "second") })

	b.Publish(testEvent("A"))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(logger.Discard())
	calls := 0
	unsub := b.Subscribe(func(domain.LifecycleEvent) { calls++ })

	b.Publish(testEvent("A"))
	unsub()
	b.Publish(testEvent("A"))
	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless.
	unsub()
}

func TestBusPanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBus(logger.Discard())
	delivered := false
	b.Subscribe(func(domain.LifecycleEvent) { panic("subscriber boom") })
	b.Subscribe(func(domain.LifecycleEvent) { delivered = true })

	assert.NotPanics(t, func() { b.Publish(testEvent("A")) })
	assert.True(t, delivered, "later subscribers still run after a panic")
}

func TestBusClosedDropsEvents(t *testing.T) {
	b := NewBus(logger.Discard())
	calls := 0
	b.Subscribe(func(domain.LifecycleEvent) { calls++ })

	b.Close()
	b.Publish(testEvent("A"))
	assert.Zero(t, calls)

	b.Close() // idempotent
}

func TestBusConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus(logger.Discard())
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Subscribe(func(domain.LifecycleEvent) {
				mu.Lock()
				total++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			b.Publish(testEvent("A"))
		}()
	}
	wg.Wait()
	// No assertion on the count: the point is the race detector stays quiet.
}
