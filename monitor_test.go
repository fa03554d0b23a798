package modreg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorFixture(t *testing.T) (*Registry, *StaticFlagProvider, *HealthMonitor) {
	t.Helper()
	flags := NewStaticFlagProvider(map[string]bool{"payments": true})
	reg := New(flags)

	require.NoError(t, reg.Register(coreConfig("core")))

	billing := coreConfig("billing", "core")
	billing.RequiredFeatures = []string{"payments"}
	require.NoError(t, reg.Register(billing))

	return reg, flags, NewHealthMonitor(reg)
}

func TestCheckHealthy(t *testing.T) {
	reg, _, mon := monitorFixture(t)

	record, err := mon.Check(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, record.Status)
	assert.False(t, record.CheckedAt.IsZero())

	info, err := reg.GetModule("billing")
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, info.Health.Status)
}

func TestCheckDegradedOnFlagFlap(t *testing.T) {
	reg, flags, mon := monitorFixture(t)

	// The flag was on at registration time and is turned off afterwards.
	flags.Set("payments", false)

	record, err := mon.Check(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, record.Status)
	assert.Equal(t, map[string]any{"disabledFeatures": []string{"payments"}}, record.Details)

	// Health is advisory: the module stays enabled.
	assert.True(t, reg.IsEnabled("billing"))
	info, err := reg.GetModule("billing")
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, info.Status)
}

func TestCheckUnhealthyOnDisabledDependency(t *testing.T) {
	reg, _, mon := monitorFixture(t)

	info, err := reg.GetModule("billing")
	require.NoError(t, err)

	// Drift scenario: core goes down after billing was enabled. The
	// registry's own Disable refuses while billing is still enabled, so the
	// drift is reproduced at the evaluation layer against the disabled
	// dependency.
	require.NoError(t, reg.Disable("billing"))
	require.NoError(t, reg.Disable("core"))

	record := mon.evaluate(info.Config)
	assert.Equal(t, HealthUnhealthy, record.Status)
	assert.Equal(t, map[string]any{"disabledDependency": "core"}, record.Details)
}

func TestCheckUnknownModule(t *testing.T) {
	_, _, mon := monitorFixture(t)
	_, err := mon.Check(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestCheckAllSweepsEnabledModules(t *testing.T) {
	reg, flags, mon := monitorFixture(t)

	disabled := coreConfig("optional", "core")
	disabled.Enabled = false
	require.NoError(t, reg.Register(disabled))

	flags.Set("payments", false)
	records := mon.CheckAll(context.Background())

	// Only enabled modules are swept.
	require.Len(t, records, 2)
	assert.Equal(t, HealthHealthy, records["core"].Status)
	assert.Equal(t, HealthDegraded, records["billing"].Status)
	_, swept := records["optional"]
	assert.False(t, swept)

	// Records were batch-applied to the registry.
	info, err := reg.GetModule("billing")
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, info.Health.Status)
}

func TestCheckAllEmitsHealthCheckedEvents(t *testing.T) {
	reg, _, mon := monitorFixture(t)
	rec := recordEvents(reg.Events())

	mon.CheckAll(context.Background())

	kinds := rec.kinds()
	require.Len(t, kinds, 2)
	for _, kind := range kinds {
		assert.Equal(t, EventHealthChecked, kind)
	}
}

func TestCheckAllIsolatesPanics(t *testing.T) {
	flags := &panickyFlags{inner: NewStaticFlagProvider(nil), panicOn: "boom"}
	reg := New(flags)

	require.NoError(t, reg.Register(coreConfig("steady")))
	bad := coreConfig("faulty")
	bad.RequiredFeatures = []string{"boom"}
	// Required flag is off, so faulty registers disabled; enable the flag
	// path only for the sweep by registering it enabled via the inner set.
	flags.inner.Set("boom", true)
	require.NoError(t, reg.Register(bad))

	flags.armed = true
	logger := &captureLogger{}
	mon := NewHealthMonitor(reg, WithMonitorLogger(logger))

	records := mon.CheckAll(context.Background())

	// The faulty module's check blew up; the sweep still covered the rest.
	assert.Equal(t, HealthHealthy, records["steady"].Status)
	_, present := records["faulty"]
	assert.False(t, present)
	assert.NotEmpty(t, logger.errors)
}

// panickyFlags panics when asked about one specific flag, to exercise sweep
// isolation.
type panickyFlags struct {
	inner   *StaticFlagProvider
	panicOn string
	armed   bool
}

func (p *panickyFlags) IsEnabled(flag string) bool {
	if p.armed && flag == p.panicOn {
		panic("flag provider failure")
	}
	return p.inner.IsEnabled(flag)
}

func TestMonitorStartStop(t *testing.T) {
	_, _, mon := monitorFixture(t)

	require.NoError(t, mon.Start())
	assert.ErrorIs(t, mon.Start(), ErrMonitorAlreadyStarted)
	mon.Stop()

	// Restart after stop is allowed; bad schedules fail.
	require.NoError(t, mon.Start())
	mon.Stop()
	mon.Stop()

	bad := NewHealthMonitor(New(nil), WithSchedule("not a schedule"))
	assert.Error(t, bad.Start())
}
