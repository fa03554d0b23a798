package modreg

import (
	"sync/atomic"
	"time"
)

// ModuleStatus is the lifecycle state of a registered module. Only the
// registry mutates it.
type ModuleStatus int

const (
	// StatusLoading is the transient state while Register validates a
	// config. It is never observable after Register returns.
	StatusLoading ModuleStatus = iota

	// StatusLoaded means the module passed validation and is active.
	StatusLoaded

	// StatusDisabled means the module is registered but switched off,
	// either by request, by a required feature flag, or via Disable.
	StatusDisabled

	// StatusError means registration or a later internal failure left the
	// module inoperable.
	StatusError

	// StatusUnloading is reserved for future unload support; nothing
	// produces it today.
	StatusUnloading
)

// String returns the string representation of the module status.
func (s ModuleStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusDisabled:
		return "disabled"
	case StatusError:
		return "error"
	case StatusUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ModuleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// moduleMetadata is the registry-owned mutable record for one module. Fields
// other than the atomic metrics are guarded by the registry lock.
type moduleMetadata struct {
	config ModuleConfig
	status ModuleStatus
	err    error
	health HealthRecord

	loadTime     time.Duration
	accessCount  atomic.Int64
	lastAccessed atomic.Int64 // unix nanos; 0 means never
}

// touch records an access from a read-path caller. Atomic so IsEnabled can
// stay on the read lock.
func (m *moduleMetadata) touch(now time.Time) {
	m.accessCount.Add(1)
	m.lastAccessed.Store(now.UnixNano())
}

// Metrics is a point-in-time copy of a module's usage counters.
type Metrics struct {
	// LoadTime is how long Register spent validating and storing the module.
	LoadTime time.Duration `json:"loadTime"`

	// AccessCount is the number of IsEnabled queries for the module.
	AccessCount int64 `json:"accessCount"`

	// LastAccessed is the time of the most recent IsEnabled query; zero if
	// the module has never been queried.
	LastAccessed time.Time `json:"lastAccessed,omitzero"`
}

// ModuleInfo is a read-only snapshot of a module's registry record, safe to
// hold after the registry lock is released.
type ModuleInfo struct {
	// Config is the configuration as registered.
	Config ModuleConfig `json:"config"`

	// Status is the lifecycle state at snapshot time.
	Status ModuleStatus `json:"status"`

	// Err is set only when Status is StatusError.
	Err error `json:"-"`

	// Metrics are the usage counters at snapshot time.
	Metrics Metrics `json:"metrics"`

	// Health is the latest advisory health record.
	Health HealthRecord `json:"health"`
}

// snapshot copies the metadata into an info value.
func (m *moduleMetadata) snapshot() ModuleInfo {
	info := ModuleInfo{
		Config:  m.config,
		Status:  m.status,
		Err:     m.err,
		Health:  m.health,
		Metrics: Metrics{LoadTime: m.loadTime, AccessCount: m.accessCount.Load()},
	}
	if nanos := m.lastAccessed.Load(); nanos != 0 {
		info.Metrics.LastAccessed = time.Unix(0, nanos)
	}
	return info
}
