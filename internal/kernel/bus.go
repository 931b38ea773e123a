package kernel

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"slate-core/internal/domain"
)

// Compile-time check: Bus implements domain.LifecycleBus.
var _ domain.LifecycleBus = (*Bus)(nil)

type subscription struct {
	id uint64
	fn domain.LifecycleFunc
}

// Bus fans lifecycle events out to subscribers. Publish invokes every
// subscriber inline on the publishing goroutine, so observers see transitions
// in order. The registry only publishes after releasing the store lock, which
// keeps re-entrant subscribers deadlock-free.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *slog.Logger
	closed atomic.Bool
}

// NewBus creates a lifecycle event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish delivers the event to every subscriber. Panicking subscribers are
// recovered and logged; they never affect the publisher or other subscribers.
func (b *Bus) Publish(ev domain.LifecycleEvent) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(ev, sub)
	}
}

func (b *Bus) invoke(ev domain.LifecycleEvent, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("lifecycle subscriber panicked",
				"agent", ev.AgentID,
				"from", string(ev.From),
				"to", string(ev.To),
				"panic", r,
			)
		}
	}()
	sub.fn(ev)
}

// Subscribe registers a callback for every lifecycle transition.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(fn domain.LifecycleFunc) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, fn: fn}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Close stops delivery. Close is idempotent.
func (b *Bus) Close() {
	b.closed.Store(true)
}
