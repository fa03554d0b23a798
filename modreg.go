// Package modreg provides a runtime registry for named feature modules.
// Modules declare dependencies on other modules and on externally controlled
// feature flags; the registry validates the dependency graph at registration
// time, gates enablement on required flags, and tracks per-module status,
// metrics and health for the lifetime of the process.
//
// Basic usage:
//
//	flags := modreg.NewStaticFlagProvider(map[string]bool{"billingEnabled": true})
//	reg := modreg.New(flags, modreg.WithLogger(logger))
//	err := reg.Register(modreg.ModuleConfig{
//		Name:     "billing",
//		Version:  "1.2.0",
//		Category: modreg.CategoryFeature,
//		Enabled:  true,
//	})
//	if reg.IsEnabled("billing") {
//		// mount billing routes
//	}
//
// The registry is explicitly constructed and safe for concurrent use; there
// is no package-level instance. Clear exists for test isolation.
package modreg

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ModuleCategory classifies a module for statistics and operational policy.
type ModuleCategory int

const (
	// CategoryCore marks modules the rest of the application assumes present.
	CategoryCore ModuleCategory = iota

	// CategoryFeature marks ordinary product feature modules.
	CategoryFeature

	// CategoryIntegration marks modules wrapping third-party integrations.
	CategoryIntegration

	// CategoryExperimental marks modules behind experiments, expected to be
	// flag-gated and freely disabled.
	CategoryExperimental
)

// String returns the string representation of the category.
func (c ModuleCategory) String() string {
	switch c {
	case CategoryCore:
		return "core"
	case CategoryFeature:
		return "feature"
	case CategoryIntegration:
		return "integration"
	case CategoryExperimental:
		return "experimental"
	default:
		return "unknown"
	}
}

// ParseModuleCategory parses a string into a ModuleCategory.
func ParseModuleCategory(s string) (ModuleCategory, error) {
	switch s {
	case "core":
		return CategoryCore, nil
	case "feature":
		return CategoryFeature, nil
	case "integration":
		return CategoryIntegration, nil
	case "experimental":
		return CategoryExperimental, nil
	default:
		return 0, fmt.Errorf("%w: invalid category %q", ErrInvalidModuleConfig, s)
	}
}

// valid reports whether the category is one of the declared constants.
func (c ModuleCategory) valid() bool {
	return c >= CategoryCore && c <= CategoryExperimental
}

// MarshalText implements encoding.TextMarshaler so categories render as
// their names in YAML, TOML and JSON output.
func (c ModuleCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML and JSON
// manifest decoding.
func (c *ModuleCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler; yaml.v3 does not consult
// encoding.TextMarshaler.
func (c ModuleCategory) MarshalYAML() (any, error) {
	return c.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for YAML manifest decoding.
func (c *ModuleCategory) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	return c.UnmarshalText([]byte(name))
}

// ModuleConfig is the immutable registration intent supplied by the caller.
// The registry stores it as-is; it is never mutated after Register returns.
type ModuleConfig struct {
	// Name is the unique identifier for the module within the registry.
	Name string `json:"name" yaml:"name" toml:"name"`

	// Version is the module's semantic version string.
	Version string `json:"version" yaml:"version" toml:"version"`

	// Dependencies lists the names of modules this module requires. Every
	// entry must already be registered when this module is registered.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`

	// RequiredFeatures are feature flags that must be enabled for this
	// module to run. A disabled required flag force-disables the module.
	RequiredFeatures []string `json:"requiredFeatures,omitempty" yaml:"requiredFeatures,omitempty" toml:"requiredFeatures,omitempty"`

	// OptionalFeatures are flags the module consults at runtime but that do
	// not gate enablement.
	OptionalFeatures []string `json:"optionalFeatures,omitempty" yaml:"optionalFeatures,omitempty" toml:"optionalFeatures,omitempty"`

	// Category classifies the module for statistics and policy.
	Category ModuleCategory `json:"category" yaml:"category" toml:"category"`

	// Priority is a load-order hint for manifest authors; higher loads
	// first. The registry never consults it — dependency order is the only
	// ordering it enforces.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`

	// Enabled is the requested initial state. Required feature flags
	// override it; flags are a hard gate, not a preference.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// Validate checks that the config is well formed. It does not consult the
// registry; structural checks against already-registered modules happen
// inside Register.
func (c ModuleConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidModuleConfig)
	}
	if c.Version == "" {
		return fmt.Errorf("%w: module %q has no version", ErrInvalidModuleConfig, c.Name)
	}
	if !c.Category.valid() {
		return fmt.Errorf("%w: module %q has unknown category %d", ErrInvalidModuleConfig, c.Name, int(c.Category))
	}
	for _, dep := range c.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: module %q lists an empty dependency name", ErrInvalidModuleConfig, c.Name)
		}
		if dep == c.Name {
			return fmt.Errorf("%w: module %q lists itself as a dependency", ErrInvalidModuleConfig, c.Name)
		}
	}
	for _, flag := range c.RequiredFeatures {
		if flag == "" {
			return fmt.Errorf("%w: module %q lists an empty required feature", ErrInvalidModuleConfig, c.Name)
		}
	}
	return nil
}

// normalized returns a copy with nil collections replaced by empty slices so
// consumers never have to distinguish absent from empty.
func (c ModuleConfig) normalized() ModuleConfig {
	if c.Dependencies == nil {
		c.Dependencies = []string{}
	}
	if c.RequiredFeatures == nil {
		c.RequiredFeatures = []string{}
	}
	if c.OptionalFeatures == nil {
		c.OptionalFeatures = []string{}
	}
	return c
}
