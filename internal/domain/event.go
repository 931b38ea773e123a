package domain

import "time"

// LifecycleEvent is fired on every agent state transition.
type LifecycleEvent struct {
	AgentID string     `json:"agent_id"`
	From    AgentState `json:"from"`
	To      AgentState `json:"to"`
	Reason  string     `json:"reason,omitempty"`
	At      time.Time  `json:"at"`
}

// LifecycleFunc observes state transitions. Callbacks run synchronously on
// the goroutine performing the transition, after the registry lock has been
// released; they may re-enter the registry but must not block.
type LifecycleFunc func(event LifecycleEvent)

// LifecycleBus fans a transition out to every subscriber, in subscription
// order, before Publish returns.
type LifecycleBus interface {
	// Publish delivers the event to all subscribers synchronously.
	Publish(event LifecycleEvent)
	// Subscribe registers a callback. Returns an unsubscribe function.
	Subscribe(fn LifecycleFunc) func()
	// Close drops all subscribers and ignores further publishes.
	Close()
}
