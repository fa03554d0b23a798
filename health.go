package modreg

import (
	"time"
)

// HealthStatus represents the advisory health of a module. Health is
// distinct from the loaded/disabled lifecycle: a degraded module stays
// enabled until an operator disables it.
type HealthStatus int

const (
	// HealthUnknown indicates no health check has run yet.
	HealthUnknown HealthStatus = iota

	// HealthHealthy indicates dependencies and required flags all hold.
	HealthHealthy

	// HealthDegraded indicates a previously satisfied required feature flag
	// is now disabled.
	HealthDegraded

	// HealthUnhealthy indicates a dependency is no longer enabled.
	HealthUnhealthy
)

// String returns the string representation of the health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// IsHealthy returns true if the status represents a healthy state.
func (s HealthStatus) IsHealthy() bool {
	return s == HealthHealthy
}

// MarshalText implements encoding.TextMarshaler.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HealthRecord is the result of one health evaluation for one module.
type HealthRecord struct {
	// Status is the verdict of the evaluation.
	Status HealthStatus `json:"status"`

	// CheckedAt is when the evaluation ran.
	CheckedAt time.Time `json:"checkedAt"`

	// Details carries structured context for the verdict, such as which
	// dependency or flag caused a non-healthy status.
	Details map[string]any `json:"details,omitempty"`
}
