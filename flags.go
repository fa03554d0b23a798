package modreg

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// FeatureFlagProvider answers whether a named feature flag is enabled. The
// registry treats it as an opaque synchronous boolean oracle: implementations
// must be fast and must not block, since flag reads happen inside the
// registry's critical sections. Providers backed by remote config must cache.
type FeatureFlagProvider interface {
	IsEnabled(flag string) bool
}

// StaticFlagProvider is an in-memory flag set. It is the natural provider
// for tests and for applications whose flags ship with the deployment.
type StaticFlagProvider struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewStaticFlagProvider creates a provider seeded with the given flags. A
// nil map is allowed and means all flags are off.
func NewStaticFlagProvider(flags map[string]bool) *StaticFlagProvider {
	copied := make(map[string]bool, len(flags))
	for name, enabled := range flags {
		copied[name] = enabled
	}
	return &StaticFlagProvider{flags: copied}
}

// IsEnabled implements FeatureFlagProvider. Unknown flags are off.
func (p *StaticFlagProvider) IsEnabled(flag string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags[flag]
}

// Set changes a flag value.
func (p *StaticFlagProvider) Set(flag string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags[flag] = enabled
}

// Delete removes a flag, making it read as off.
func (p *StaticFlagProvider) Delete(flag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.flags, flag)
}

// EnvFlagProvider reads flags from environment variables. The flag name is
// upper-cased, non-alphanumeric runes become underscores, and the prefix is
// prepended: with prefix "MODREG_FLAG" the flag "billingEnabled" reads
// MODREG_FLAG_BILLINGENABLED. Values are coerced to bool, so "1", "true" and
// "TRUE" all enable a flag.
type EnvFlagProvider struct {
	prefix string
}

// DefaultEnvFlagPrefix is used when NewEnvFlagProvider is given an empty prefix.
const DefaultEnvFlagPrefix = "MODREG_FLAG"

// NewEnvFlagProvider creates an environment-backed provider.
func NewEnvFlagProvider(prefix string) *EnvFlagProvider {
	if prefix == "" {
		prefix = DefaultEnvFlagPrefix
	}
	return &EnvFlagProvider{prefix: strings.ToUpper(strings.TrimSuffix(prefix, "_"))}
}

// IsEnabled implements FeatureFlagProvider. Unset or unparsable values are off.
func (p *EnvFlagProvider) IsEnabled(flag string) bool {
	value := os.Getenv(p.envName(flag))
	if value == "" {
		return false
	}
	converted, err := cast.FromType(value, reflect.TypeOf(false))
	if err != nil {
		return false
	}
	enabled, ok := converted.(bool)
	return ok && enabled
}

func (p *EnvFlagProvider) envName(flag string) string {
	var b strings.Builder
	b.WriteString(p.prefix)
	b.WriteByte('_')
	for _, r := range strings.ToUpper(flag) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// flagFile is the on-disk shape of a flag file in either YAML or TOML:
//
//	flags:
//	  billingEnabled: true
//	  newCheckout: false
type flagFile struct {
	Flags map[string]bool `yaml:"flags" toml:"flags"`
}

// FileFlagProvider reads flags from a YAML or TOML file and caches them in
// memory, so flag reads inside the registry never touch the filesystem.
// Watch enables hot reload: on file change the flag set is reparsed and
// swapped atomically.
type FileFlagProvider struct {
	path   string
	logger Logger

	mu    sync.RWMutex
	flags map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileFlagProvider loads the flag file at path. The format is chosen by
// extension: .yaml/.yml or .toml.
func NewFileFlagProvider(path string, logger Logger) (*FileFlagProvider, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	p := &FileFlagProvider{path: path, logger: logger}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// IsEnabled implements FeatureFlagProvider against the cached flag set.
func (p *FileFlagProvider) IsEnabled(flag string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags[flag]
}

// Reload reparses the flag file and swaps the cached set. The previous set
// stays in place when parsing fails.
func (p *FileFlagProvider) Reload() error {
	return p.reload()
}

func (p *FileFlagProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read flag file: %w", err)
	}

	var parsed flagFile
	switch ext := strings.ToLower(filepath.Ext(p.path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse YAML flag file %s: %w", p.path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse TOML flag file %s: %w", p.path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrFlagFileFormatUnknown, ext)
	}

	if parsed.Flags == nil {
		parsed.Flags = make(map[string]bool)
	}

	p.mu.Lock()
	p.flags = parsed.Flags
	p.mu.Unlock()

	p.logger.Debug("Flag file loaded", "path", p.path, "flags", len(parsed.Flags))
	return nil
}

// Watch starts watching the flag file for changes and reloading on write.
// It returns immediately; Close stops the watcher.
func (p *FileFlagProvider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory rather than the file so editors that replace the
	// file (rename + create) keep triggering events.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch flag file directory: %w", err)
	}

	p.watcher = watcher
	p.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.reload(); err != nil {
					p.logger.Error("Flag file reload failed", "path", p.path, "error", err)
				} else {
					p.logger.Info("Flag file reloaded", "path", p.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("Flag file watcher error", "path", p.path, "error", err)
			case <-p.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher if one is running.
func (p *FileFlagProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
