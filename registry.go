package modreg

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative table of registered modules. It owns all
// module metadata, enforces the dependency-graph invariants at registration
// time, gates enablement on feature flags, and is the only component that
// mutates module status.
//
// All methods are safe for concurrent use. Mutating operations serialize on
// a write lock; IsEnabled, GetModule and Statistics take the read lock and
// are cheap enough for per-request call sites. Events are published after
// the lock is released, so event handlers may re-enter the registry.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*moduleMetadata
	graph   *dependencyGraph
	flags   FeatureFlagProvider
	bus     *EventBus
	logger  Logger
	clock   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger used by the registry and, unless a
// bus is supplied separately, its event bus.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithEventBus sets the bus lifecycle events are published to. Without this
// option the registry creates its own bus, reachable via Events.
func WithEventBus(bus *EventBus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// New creates a registry backed by the given feature flag provider. A nil
// provider is treated as "all flags off".
func New(flags FeatureFlagProvider, opts ...Option) *Registry {
	r := &Registry{
		modules: make(map[string]*moduleMetadata),
		graph:   newDependencyGraph(),
		flags:   flags,
		logger:  noopLogger{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.flags == nil {
		r.flags = NewStaticFlagProvider(nil)
	}
	if r.bus == nil {
		r.bus = NewEventBus(r.logger)
	}
	return r
}

// Events returns the bus lifecycle events are published to.
func (r *Registry) Events() *EventBus {
	return r.bus
}

// Register validates and stores a module. Dependencies must already be
// registered; registering a module whose edges would close a cycle fails
// with ErrCircularDependency and leaves the graph untouched.
//
// When any required feature flag is disabled the module is stored disabled
// regardless of the requested enabled state. Failures leave no trace of the
// module in the registry.
func (r *Registry) Register(config ModuleConfig) error {
	started := r.clock()

	if err := config.Validate(); err != nil {
		r.fail(config.Name, "register", err)
		return err
	}
	config = config.normalized()

	r.mu.Lock()

	if _, exists := r.modules[config.Name]; exists {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrDuplicateModule, config.Name)
		r.fail(config.Name, "register", err)
		return err
	}

	for _, dep := range config.Dependencies {
		if _, exists := r.modules[dep]; !exists {
			r.mu.Unlock()
			err := fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, config.Name, dep)
			r.fail(config.Name, "register", err)
			return err
		}
	}

	if cyclic, cycle := r.graph.wouldCycle(config.Name, config.Dependencies); cyclic {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrCircularDependency, formatCycle(cycle))
		r.fail(config.Name, "register", err)
		return err
	}

	// Validation passed; commit. The metadata passes through the transient
	// loading state, never observable outside the lock.
	meta := &moduleMetadata{config: config, status: StatusLoading}

	forcedDisabled := false
	if missing := r.missingRequiredFlags(config); len(missing) > 0 {
		forcedDisabled = config.Enabled
		meta.config.Enabled = false
		meta.status = StatusDisabled
		meta.health = HealthRecord{
			Status:    HealthDegraded,
			CheckedAt: r.clock(),
			Details:   map[string]any{"disabledFeatures": missing},
		}
	} else if config.Enabled {
		meta.status = StatusLoaded
		meta.health = HealthRecord{Status: HealthHealthy, CheckedAt: r.clock()}
	} else {
		meta.status = StatusDisabled
	}

	meta.loadTime = r.clock().Sub(started)
	r.modules[config.Name] = meta
	r.graph.add(config.Name, config.Dependencies)

	status := meta.status
	r.mu.Unlock()

	if forcedDisabled {
		r.logger.Warn("Module force-disabled by feature flags",
			"module", config.Name, "requiredFeatures", config.RequiredFeatures)
	}
	r.logger.Info("Module registered",
		"module", config.Name, "version", config.Version,
		"category", config.Category.String(), "status", status.String())

	r.bus.Publish(context.Background(), RegisteredEvent{
		Module:         config.Name,
		Version:        config.Version,
		Category:       config.Category,
		Status:         status,
		ForcedDisabled: forcedDisabled,
		Time:           r.clock(),
	})
	return nil
}

// IsEnabled reports whether the named module is loaded and enabled. Unknown
// names return false rather than an error so call sites can use it as a
// plain boolean gate. Each call counts as an access in the module's metrics.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.modules[name]
	if !exists {
		return false
	}
	meta.touch(r.clock())
	return meta.status == StatusLoaded && meta.config.Enabled
}

// GetModule returns a snapshot of the named module's record.
func (r *Registry) GetModule(name string) (ModuleInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.modules[name]
	if !exists {
		return ModuleInfo{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return meta.snapshot(), nil
}

// ModuleNames returns the sorted names of all registered modules.
func (r *Registry) ModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependents returns the names of modules that directly depend on name.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.dependentsOf(name)
}

// Enable transitions a disabled module back to loaded. Every dependency
// must currently be enabled and every required feature flag on. Enabling an
// already-enabled module is a no-op success.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()

	meta, exists := r.modules[name]
	if !exists {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrModuleNotFound, name)
		r.fail(name, "enable", err)
		return err
	}

	if meta.status == StatusLoaded && meta.config.Enabled {
		r.mu.Unlock()
		return nil
	}

	for _, dep := range meta.config.Dependencies {
		if !r.enabledLocked(dep) {
			r.mu.Unlock()
			err := fmt.Errorf("%w: %s requires %s", ErrDependencyNotEnabled, name, dep)
			r.fail(name, "enable", err)
			return err
		}
	}

	if missing := r.missingRequiredFlags(meta.config); len(missing) > 0 {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s requires %v", ErrRequiredFeatureDisabled, name, missing)
		r.fail(name, "enable", err)
		return err
	}

	meta.status = StatusLoaded
	meta.config.Enabled = true
	meta.err = nil
	meta.health = HealthRecord{Status: HealthHealthy, CheckedAt: r.clock()}
	r.mu.Unlock()

	r.logger.Info("Module enabled", "module", name)
	r.bus.Publish(context.Background(), EnabledEvent{Module: name, Time: r.clock()})
	return nil
}

// Disable transitions a module to disabled. It fails while any dependent is
// still enabled, so a module is never pulled out from under its consumers.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()

	meta, exists := r.modules[name]
	if !exists {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrModuleNotFound, name)
		r.fail(name, "disable", err)
		return err
	}

	if ok, blocking := r.graph.canRemove(name, r.enabledLocked); !ok {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s is required by %v", ErrDependentsStillEnabled, name, blocking)
		r.fail(name, "disable", err)
		return err
	}

	meta.status = StatusDisabled
	meta.config.Enabled = false
	r.mu.Unlock()

	r.logger.Info("Module disabled", "module", name)
	r.bus.Publish(context.Background(), DisabledEvent{Module: name, Time: r.clock()})
	return nil
}

// Clear resets the registry to empty. Intended for test isolation, not
// production use; subscriptions on the event bus survive.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modules = make(map[string]*moduleMetadata)
	r.graph.clear()
	r.logger.Debug("Registry cleared")
}

// enabled is IsEnabled without the metrics side effect, for internal
// consumers such as health sweeps that should not count as module accesses.
func (r *Registry) enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledLocked(name)
}

// enabledLocked is IsEnabled without the metrics side effect, for use while
// the lock is already held.
func (r *Registry) enabledLocked(name string) bool {
	meta, exists := r.modules[name]
	return exists && meta.status == StatusLoaded && meta.config.Enabled
}

// missingRequiredFlags returns the required feature flags currently disabled
// for the config, in declaration order.
func (r *Registry) missingRequiredFlags(config ModuleConfig) []string {
	var missing []string
	for _, flag := range config.RequiredFeatures {
		if !r.flags.IsEnabled(flag) {
			missing = append(missing, flag)
		}
	}
	return missing
}

// applyHealth batch-writes health records produced by a monitor sweep under
// one short write-lock.
func (r *Registry) applyHealth(records map[string]HealthRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, record := range records {
		if meta, exists := r.modules[name]; exists {
			meta.health = record
		}
	}
}

// enabledConfigs snapshots the configs of all currently enabled modules, for
// monitor sweeps that evaluate outside the lock.
func (r *Registry) enabledConfigs() []ModuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]ModuleConfig, 0, len(r.modules))
	for _, meta := range r.modules {
		if meta.status == StatusLoaded && meta.config.Enabled {
			configs = append(configs, meta.config)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

// fail logs an operation failure and emits an error event.
func (r *Registry) fail(module, op string, err error) {
	r.logger.Error("Registry operation failed", "module", module, "op", op, "error", err)
	r.bus.Publish(context.Background(), ErrorEvent{Module: module, Op: op, Err: err, Time: r.clock()})
}
