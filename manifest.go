package modreg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest is the declarative module list applied to a registry at startup.
// Order matters: the registry requires dependencies before dependents and
// never reorders, so the manifest author (or SortByPriority plus careful
// dependency layering) is responsible for a registrable sequence.
type Manifest struct {
	Modules []ModuleConfig `yaml:"modules" toml:"modules" json:"modules"`
}

// ManifestResult reports the outcome of applying a manifest. Registration
// failures are local to their module: the remainder of the manifest is still
// applied.
type ManifestResult struct {
	// Registered lists successfully registered module names, in manifest order.
	Registered []string

	// Failed maps module names to their registration errors.
	Failed map[string]error
}

// Ok reports whether every module registered cleanly.
func (r *ManifestResult) Ok() bool {
	return len(r.Failed) == 0
}

// Err returns nil when the whole manifest applied, otherwise an error
// summarizing the failed modules.
func (r *ManifestResult) Err() error {
	if r.Ok() {
		return nil
	}
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("%d of %d modules failed to register: %s",
		len(r.Failed), len(r.Failed)+len(r.Registered), strings.Join(names, ", "))
}

// LoadManifest reads a manifest file, choosing the format by extension:
// .yaml/.yml or .toml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseManifestYAML(data)
	case ".toml":
		return ParseManifestTOML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrManifestFormatUnknown, ext)
	}
}

// ParseManifestYAML decodes a YAML manifest.
func ParseManifestYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
	}
	return &m, nil
}

// ParseManifestTOML decodes a TOML manifest.
func ParseManifestTOML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse TOML manifest: %w", err)
	}
	return &m, nil
}

// SortByPriority stably reorders the manifest so higher-priority modules
// come first. This is an authoring aid only — it does not make an
// unregistrable manifest registrable, since dependency order still wins and
// the registry never consults priority itself.
func (m *Manifest) SortByPriority() {
	sort.SliceStable(m.Modules, func(i, j int) bool {
		return m.Modules[i].Priority > m.Modules[j].Priority
	})
}

// Apply registers every module in manifest order. A module that fails to
// register is recorded in the result and the sweep moves on; already
// registered modules are unaffected, per-operation consistency being the
// registry's contract. A ready event is published when the sweep finishes.
func (m *Manifest) Apply(ctx context.Context, reg *Registry) *ManifestResult {
	result := &ManifestResult{Failed: make(map[string]error)}

	for _, config := range m.Modules {
		if err := reg.Register(config); err != nil {
			result.Failed[config.Name] = err
			continue
		}
		result.Registered = append(result.Registered, config.Name)
	}

	reg.Events().Publish(ctx, ReadyEvent{
		Registered: append([]string(nil), result.Registered...),
		Failed:     result.Failed,
		Time:       time.Now(),
	})
	return result
}
