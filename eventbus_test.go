package modreg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus(nil)

	var got []string
	bus.Subscribe(EventEnabled, func(_ context.Context, e Event) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(EventEnabled, func(_ context.Context, e Event) error {
		got = append(got, "second")
		return nil
	})
	bus.Subscribe(EventDisabled, func(_ context.Context, e Event) error {
		got = append(got, "other-kind")
		return nil
	})

	bus.Publish(context.Background(), EnabledEvent{Module: "m", Time: time.Now()})

	// Synchronous delivery in subscription order, filtered by kind.
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestSubscribeNilHandler(t *testing.T) {
	bus := NewEventBus(nil)
	assert.Nil(t, bus.Subscribe(EventEnabled, nil))
	assert.Nil(t, bus.SubscribeAll(nil))
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(nil)

	calls := 0
	sub := bus.Subscribe(EventEnabled, func(_ context.Context, _ Event) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), EnabledEvent{Module: "m", Time: time.Now()})
	sub.Cancel()
	bus.Publish(context.Background(), EnabledEvent{Module: "m", Time: time.Now()})

	assert.Equal(t, 1, calls)

	// Cancelling twice and unsubscribing nil are no-ops.
	sub.Cancel()
	bus.Unsubscribe(nil)
}

func TestHandlerFailureIsolation(t *testing.T) {
	bus := NewEventBus(nil)

	var reached []string
	bus.Subscribe(EventRegistered, func(_ context.Context, _ Event) error {
		panic("handler exploded")
	})
	bus.Subscribe(EventRegistered, func(_ context.Context, _ Event) error {
		reached = append(reached, "errorer")
		return errors.New("handler failed")
	})
	bus.Subscribe(EventRegistered, func(_ context.Context, _ Event) error {
		reached = append(reached, "survivor")
		return nil
	})

	bus.Publish(context.Background(), RegisteredEvent{Module: "m", Time: time.Now()})

	// Both the panic and the error were contained; delivery continued.
	assert.Equal(t, []string{"errorer", "survivor"}, reached)
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus(nil)

	var kinds []EventKind
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		kinds = append(kinds, e.Kind())
		return nil
	})

	bus.Publish(context.Background(), EnabledEvent{Module: "m", Time: time.Now()})
	bus.Publish(context.Background(), DisabledEvent{Module: "m", Time: time.Now()})

	assert.Equal(t, []EventKind{EventEnabled, EventDisabled}, kinds)
}

func TestEventCloudEnvelopes(t *testing.T) {
	now := time.Now()
	record := HealthRecord{Status: HealthDegraded, CheckedAt: now, Details: map[string]any{"disabledFeatures": []string{"x"}}}

	tests := []struct {
		event    Event
		kind     EventKind
		ceType   string
	}{
		{RegisteredEvent{Module: "m", Version: "1.0.0", Time: now}, EventRegistered, EventTypeModuleRegistered},
		{EnabledEvent{Module: "m", Time: now}, EventEnabled, EventTypeModuleEnabled},
		{DisabledEvent{Module: "m", Time: now}, EventDisabled, EventTypeModuleDisabled},
		{ErrorEvent{Module: "m", Op: "enable", Err: errors.New("boom"), Time: now}, EventError, EventTypeModuleError},
		{HealthCheckedEvent{Module: "m", Record: record, Time: now}, EventHealthChecked, EventTypeModuleHealthChecked},
		{ReadyEvent{Registered: []string{"m"}, Failed: map[string]error{"n": errors.New("bad")}, Time: now}, EventReady, EventTypeRegistryReady},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.event.Kind())
			assert.Equal(t, now, tt.event.OccurredAt())

			ce := tt.event.CloudEvent()
			require.NoError(t, ce.Validate())
			assert.Equal(t, tt.ceType, ce.Type())
			assert.Equal(t, eventSource, ce.Source())
			assert.NotEmpty(t, ce.ID())
			assert.False(t, seen[ce.ID()], "event IDs must be unique")
			seen[ce.ID()] = true
		})
	}
}

func TestLoggingHandler(t *testing.T) {
	logger := &captureLogger{}
	handler := NewLoggingHandler(logger)

	require.NoError(t, handler(context.Background(), EnabledEvent{Module: "m", Time: time.Now()}))
	require.Len(t, logger.infos, 1)
}

// captureLogger stores log calls for assertions.
type captureLogger struct {
	infos  []string
	warns  []string
	errors []string
	debugs []string
}

func (l *captureLogger) Info(msg string, _ ...any)  { l.infos = append(l.infos, msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *captureLogger) Debug(msg string, _ ...any) { l.debugs = append(l.debugs, msg) }
