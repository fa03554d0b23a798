package modreg

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// HealthMonitor re-validates enabled modules on demand or on a schedule.
// Verdicts are advisory: the monitor records health on the registry but
// never transitions module status, so a flapping feature flag cannot make a
// module silently vanish. Disabling a degraded module is an operator call.
type HealthMonitor struct {
	registry *Registry
	logger   Logger
	schedule string
	cron     *cron.Cron
}

// MonitorOption configures a HealthMonitor.
type MonitorOption func(*HealthMonitor)

// WithMonitorLogger sets the monitor's logger.
func WithMonitorLogger(logger Logger) MonitorOption {
	return func(m *HealthMonitor) {
		m.logger = logger
	}
}

// WithSchedule sets the cron schedule for periodic sweeps. Accepts standard
// cron expressions and descriptors such as "@every 30s". Default "@every 1m".
func WithSchedule(schedule string) MonitorOption {
	return func(m *HealthMonitor) {
		m.schedule = schedule
	}
}

// NewHealthMonitor creates a monitor over the given registry.
func NewHealthMonitor(registry *Registry, opts ...MonitorOption) *HealthMonitor {
	m := &HealthMonitor{
		registry: registry,
		logger:   noopLogger{},
		schedule: "@every 1m",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins periodic sweeps. Stop ends them; Start after Stop is allowed.
func (m *HealthMonitor) Start() error {
	if m.cron != nil {
		return ErrMonitorAlreadyStarted
	}

	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() { m.CheckAll(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule health sweep: %w", err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("Health monitor started", "schedule", m.schedule)
	return nil
}

// Stop halts periodic sweeps and waits for an in-flight sweep to finish.
func (m *HealthMonitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
	m.logger.Info("Health monitor stopped")
}

// Check evaluates one module by name and records the verdict.
func (m *HealthMonitor) Check(ctx context.Context, name string) (HealthRecord, error) {
	info, err := m.registry.GetModule(name)
	if err != nil {
		return HealthRecord{}, err
	}

	record := m.evaluate(info.Config)
	m.registry.applyHealth(map[string]HealthRecord{name: record})
	m.registry.Events().Publish(ctx, HealthCheckedEvent{Module: name, Record: record, Time: record.CheckedAt})
	return record, nil
}

// CheckAll sweeps every enabled module. A failure evaluating one module is
// isolated and logged; the sweep continues with the rest. Records are
// applied to the registry in one batch to keep lock hold time short.
func (m *HealthMonitor) CheckAll(ctx context.Context) map[string]HealthRecord {
	configs := m.registry.enabledConfigs()
	records := make(map[string]HealthRecord, len(configs))

	for _, config := range configs {
		record, ok := m.evaluateIsolated(config)
		if !ok {
			continue
		}
		records[config.Name] = record
	}

	m.registry.applyHealth(records)

	bus := m.registry.Events()
	for _, config := range configs {
		if record, ok := records[config.Name]; ok {
			bus.Publish(ctx, HealthCheckedEvent{Module: config.Name, Record: record, Time: record.CheckedAt})
		}
	}

	m.logger.Debug("Health sweep complete", "modules", len(records))
	return records
}

// evaluateIsolated wraps evaluate with panic recovery so one bad module
// cannot abort a sweep.
func (m *HealthMonitor) evaluateIsolated(config ModuleConfig) (record HealthRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health check panicked", "module", config.Name, "panic", r)
			ok = false
		}
	}()
	return m.evaluate(config), true
}

// evaluate computes the health verdict for one enabled module: unhealthy if
// a dependency has been disabled since this module was enabled, degraded if
// a required feature flag has been turned off, healthy otherwise.
func (m *HealthMonitor) evaluate(config ModuleConfig) HealthRecord {
	now := time.Now()

	for _, dep := range config.Dependencies {
		if !m.registry.enabled(dep) {
			return HealthRecord{
				Status:    HealthUnhealthy,
				CheckedAt: now,
				Details:   map[string]any{"disabledDependency": dep},
			}
		}
	}

	var offFlags []string
	for _, flag := range config.RequiredFeatures {
		if !m.registry.flags.IsEnabled(flag) {
			offFlags = append(offFlags, flag)
		}
	}
	if len(offFlags) > 0 {
		return HealthRecord{
			Status:    HealthDegraded,
			CheckedAt: now,
			Details:   map[string]any{"disabledFeatures": offFlags},
		}
	}

	return HealthRecord{Status: HealthHealthy, CheckedAt: now}
}
