package modreg

import (
	"context"
	"sync"
	"time"
)

// EventHandler processes one lifecycle event. Handlers run synchronously in
// publish order; a handler that returns an error or panics is logged and
// does not stop delivery to the remaining handlers.
type EventHandler func(ctx context.Context, event Event) error

// Subscription is the handle returned by Subscribe, used to cancel delivery.
type Subscription struct {
	id      uint64
	kind    EventKind
	all     bool
	handler EventHandler
	bus     *EventBus
}

// Cancel removes the subscription from the bus. Idempotent.
func (s *Subscription) Cancel() {
	s.bus.Unsubscribe(s)
}

// EventBus is an in-process publish/subscribe dispatcher for registry
// lifecycle events. The zero value is not usable; construct with NewEventBus.
//
// The registry publishes to the bus only after releasing its own lock, so
// handlers may safely call back into the registry.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	byKind map[EventKind][]*Subscription
	allSub []*Subscription
	logger Logger
}

// NewEventBus creates an event bus. Passing nil uses a no-op logger.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventBus{
		byKind: make(map[EventKind][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for one event kind. Returns nil if handler
// is nil.
func (b *EventBus) Subscribe(kind EventKind, handler EventHandler) *Subscription {
	if handler == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, kind: kind, handler: handler, bus: b}
	b.byKind[kind] = append(b.byKind[kind], sub)
	return sub
}

// SubscribeAll registers a handler for every event kind.
func (b *EventBus) SubscribeAll(handler EventHandler) *Subscription {
	if handler == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, all: true, handler: handler, bus: b}
	b.allSub = append(b.allSub, sub)
	return sub
}

// Unsubscribe removes a subscription. Idempotent; a nil subscription is a
// no-op.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.all {
		b.allSub = removeSubscription(b.allSub, sub.id)
		return
	}
	b.byKind[sub.kind] = removeSubscription(b.byKind[sub.kind], sub.id)
}

func removeSubscription(subs []*Subscription, id uint64) []*Subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish delivers an event to all matching subscribers, in subscription
// order. Handler failures are isolated: an error or panic in one handler is
// logged and delivery continues.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]*Subscription, 0, len(b.allSub)+len(b.byKind[event.Kind()]))
	handlers = append(handlers, b.byKind[event.Kind()]...)
	handlers = append(handlers, b.allSub...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.deliver(ctx, sub, event)
	}
}

func (b *EventBus) deliver(ctx context.Context, sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "kind", event.Kind(), "panic", r)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("Event handler error", "kind", event.Kind(), "error", err)
	}
}

// NewLoggingHandler returns a handler that logs each event's CloudEvents
// envelope attributes through the given logger. Subscribe it with
// SubscribeAll to get an audit trail of registry activity.
func NewLoggingHandler(logger Logger) EventHandler {
	return func(_ context.Context, event Event) error {
		ce := event.CloudEvent()
		logger.Info("Registry event",
			"id", ce.ID(),
			"type", ce.Type(),
			"source", ce.Source(),
			"time", ce.Time().Format(time.RFC3339),
		)
		return nil
	}
}
