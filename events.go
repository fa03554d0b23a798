package modreg

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventKind identifies one of the registry's lifecycle events. The set is
// closed; subscribers dispatch on the concrete Event type rather than on
// strings.
type EventKind string

const (
	EventRegistered    EventKind = "registered"
	EventEnabled       EventKind = "enabled"
	EventDisabled      EventKind = "disabled"
	EventError         EventKind = "error"
	EventHealthChecked EventKind = "healthChecked"
	EventReady         EventKind = "ready"
)

// CloudEvent type strings, following the CloudEvents reverse-domain
// convention used on the bus's interoperability surface.
const (
	EventTypeModuleRegistered    = "com.modreg.module.registered"
	EventTypeModuleEnabled       = "com.modreg.module.enabled"
	EventTypeModuleDisabled      = "com.modreg.module.disabled"
	EventTypeModuleError         = "com.modreg.module.error"
	EventTypeModuleHealthChecked = "com.modreg.module.healthchecked"
	EventTypeRegistryReady       = "com.modreg.registry.ready"
)

// Event is the closed union of registry lifecycle events. Each variant
// carries only the fields relevant to that event; subscribers type-switch on
// the concrete type:
//
//	bus.Subscribe(modreg.EventRegistered, func(ctx context.Context, e modreg.Event) error {
//		evt := e.(modreg.RegisteredEvent)
//		log.Println("registered", evt.Module, evt.Version)
//		return nil
//	})
type Event interface {
	// Kind returns the event's kind within the closed enumeration.
	Kind() EventKind

	// OccurredAt returns when the event happened.
	OccurredAt() time.Time

	// CloudEvent renders the event as a CloudEvents envelope for delivery
	// to external systems.
	CloudEvent() cloudevents.Event
}

// RegisteredEvent is emitted after a module is successfully registered.
type RegisteredEvent struct {
	Module   string
	Version  string
	Category ModuleCategory
	Status   ModuleStatus

	// ForcedDisabled is true when a disabled required feature flag
	// overrode the config's requested enabled state. Such events warrant
	// warning-level handling.
	ForcedDisabled bool

	Time time.Time
}

func (e RegisteredEvent) Kind() EventKind       { return EventRegistered }
func (e RegisteredEvent) OccurredAt() time.Time { return e.Time }
func (e RegisteredEvent) CloudEvent() cloudevents.Event {
	return newCloudEvent(EventTypeModuleRegistered, map[string]any{
		"module":         e.Module,
		"version":        e.Version,
		"category":       e.Category.String(),
		"status":         e.Status.String(),
		"forcedDisabled": e.ForcedDisabled,
	}, e.Time)
}

// EnabledEvent is emitted when a module transitions to loaded via Enable.
type EnabledEvent struct {
	Module string
	Time   time.Time
}

func (e EnabledEvent) Kind() EventKind       { return EventEnabled }
func (e EnabledEvent) OccurredAt() time.Time { return e.Time }
func (e EnabledEvent) CloudEvent() cloudevents.Event {
	return newCloudEvent(EventTypeModuleEnabled, map[string]any{"module": e.Module}, e.Time)
}

// DisabledEvent is emitted when a module transitions to disabled via Disable.
type DisabledEvent struct {
	Module string
	Time   time.Time
}

func (e DisabledEvent) Kind() EventKind       { return EventDisabled }
func (e DisabledEvent) OccurredAt() time.Time { return e.Time }
func (e DisabledEvent) CloudEvent() cloudevents.Event {
	return newCloudEvent(EventTypeModuleDisabled, map[string]any{"module": e.Module}, e.Time)
}

// ErrorEvent is emitted when a registry operation fails.
type ErrorEvent struct {
	// Module is the module the failed operation targeted.
	Module string

	// Op names the operation that failed: "register", "enable" or "disable".
	Op string

	Err  error
	Time time.Time
}

func (e ErrorEvent) Kind() EventKind       { return EventError }
func (e ErrorEvent) OccurredAt() time.Time { return e.Time }
func (e ErrorEvent) CloudEvent() cloudevents.Event {
	return newCloudEvent(EventTypeModuleError, map[string]any{
		"module": e.Module,
		"op":     e.Op,
		"error":  e.Err.Error(),
	}, e.Time)
}

// HealthCheckedEvent is emitted after a health evaluation of one module.
type HealthCheckedEvent struct {
	Module string
	Record HealthRecord
	Time   time.Time
}

func (e HealthCheckedEvent) Kind() EventKind       { return EventHealthChecked }
func (e HealthCheckedEvent) OccurredAt() time.Time { return e.Time }
func (e HealthCheckedEvent) CloudEvent() cloudevents.Event {
	return newCloudEvent(EventTypeModuleHealthChecked, map[string]any{
		"module":  e.Module,
		"status":  e.Record.Status.String(),
		"details": e.Record.Details,
	}, e.Time)
}

// ReadyEvent is emitted once a manifest sweep finishes, whether or not every
// module registered cleanly.
type ReadyEvent struct {
	// Registered lists modules registered by the sweep, in order.
	Registered []string

	// Failed maps module names to their registration errors.
	Failed map[string]error

	Time time.Time
}

func (e ReadyEvent) Kind() EventKind       { return EventReady }
func (e ReadyEvent) OccurredAt() time.Time { return e.Time }
func (e ReadyEvent) CloudEvent() cloudevents.Event {
	failed := make(map[string]string, len(e.Failed))
	for name, err := range e.Failed {
		failed[name] = err.Error()
	}
	return newCloudEvent(EventTypeRegistryReady, map[string]any{
		"registered": e.Registered,
		"failed":     failed,
	}, e.Time)
}

// eventSource is the CloudEvents source attribute for all registry events.
const eventSource = "modreg/registry"

// newCloudEvent builds a CloudEvents v1 envelope with a time-ordered ID.
func newCloudEvent(eventType string, data map[string]any, occurred time.Time) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(occurred)
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// newEventID generates a UUIDv7 identifier, falling back to v4 if the random
// source misbehaves.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
