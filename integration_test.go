package modreg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end flow: a manifest loaded from disk populates the registry, a
// disabled required flag force-disables the gated module, flipping the flag
// lets an operator enable it, and the monitor plus HTTP surface observe the
// whole thing.
func TestEndToEndManifestLifecycle(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`
modules:
  - name: core
    version: 1.0.0
    category: core
    enabled: true
  - name: billing
    version: 2.0.0
    category: feature
    dependencies: [core]
    requiredFeatures: [billingEnabled]
    enabled: true
`), 0o644))

	flags := NewStaticFlagProvider(map[string]bool{"billingEnabled": false})
	reg := New(flags)
	rec := recordEvents(reg.Events())

	manifest, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	result := manifest.Apply(context.Background(), reg)
	require.True(t, result.Ok())

	// The gate held despite the manifest requesting enabled=true.
	assert.True(t, reg.IsEnabled("core"))
	assert.False(t, reg.IsEnabled("billing"))
	info, err := reg.GetModule("billing")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, info.Status)

	// Flag flips on; an operator enables the module.
	flags.Set("billingEnabled", true)
	require.NoError(t, reg.Enable("billing"))
	assert.True(t, reg.IsEnabled("billing"))

	// A health sweep agrees.
	mon := NewHealthMonitor(reg)
	records := mon.CheckAll(context.Background())
	assert.Equal(t, HealthHealthy, records["billing"].Status)

	// The observability surface reflects the final state.
	handler := NewStatusHandler(reg)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/modules/billing", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"loaded"`)

	stats := reg.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Enabled)

	// Lifecycle was fully narrated on the bus.
	kinds := rec.kinds()
	assert.Equal(t, EventRegistered, kinds[0])
	assert.Contains(t, kinds, EventReady)
	assert.Contains(t, kinds, EventEnabled)
	assert.Contains(t, kinds, EventHealthChecked)
}

// Flag state read through a file provider feeds the registry the same as a
// static provider, with reloads picking up edits.
func TestFileFlagProviderDrivesRegistry(t *testing.T) {
	flagPath := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(flagPath, []byte("flags:\n  search: false\n"), 0o644))

	flags, err := NewFileFlagProvider(flagPath, nil)
	require.NoError(t, err)
	reg := New(flags)

	cfg := coreConfig("search")
	cfg.RequiredFeatures = []string{"search"}
	require.NoError(t, reg.Register(cfg))
	assert.False(t, reg.IsEnabled("search"))

	require.NoError(t, os.WriteFile(flagPath, []byte("flags:\n  search: true\n"), 0o644))
	require.NoError(t, flags.Reload())
	require.NoError(t, reg.Enable("search"))
	assert.True(t, reg.IsEnabled("search"))
}
