package modreg

import (
	"errors"
)

// Registry errors. Every failure in this package is local to a single
// operation and leaves the registry in its previous valid state; callers
// match with errors.Is.
var (
	// Registration-time structural errors
	ErrInvalidModuleConfig = errors.New("invalid module config")
	ErrDuplicateModule     = errors.New("module already registered")
	ErrUnknownDependency   = errors.New("dependency is not registered")
	ErrCircularDependency  = errors.New("circular dependency detected")

	// Operational errors from enable/disable
	ErrModuleNotFound          = errors.New("module not found")
	ErrDependencyNotEnabled    = errors.New("dependency is not enabled")
	ErrRequiredFeatureDisabled = errors.New("required feature flag is disabled")
	ErrDependentsStillEnabled  = errors.New("module still has enabled dependents")

	// Event bus errors
	ErrEventHandlerNil = errors.New("event handler cannot be nil")

	// Health monitor errors
	ErrMonitorAlreadyStarted = errors.New("health monitor already started")

	// Manifest errors
	ErrManifestFormatUnknown = errors.New("unsupported manifest file format")

	// Flag provider errors
	ErrFlagFileFormatUnknown = errors.New("unsupported flag file format")
)
