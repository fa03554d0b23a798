package modreg

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiFixture(t *testing.T) http.Handler {
	t.Helper()
	flags := NewStaticFlagProvider(map[string]bool{"search": true})
	reg := New(flags)

	require.NoError(t, reg.Register(coreConfig("core")))
	search := coreConfig("search", "core")
	search.Category = CategoryFeature
	search.RequiredFeatures = []string{"search"}
	require.NoError(t, reg.Register(search))

	return NewStatusHandler(reg)
}

func getJSON(t *testing.T, handler http.Handler, path string, target any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if target != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target))
	}
	return w
}

func TestStatusHandlerModules(t *testing.T) {
	handler := apiFixture(t)

	var modules []map[string]any
	w := getJSON(t, handler, "/modules", &modules)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	require.Len(t, modules, 2)
	assert.Equal(t, "core", modules[0]["name"])
	assert.Equal(t, "search", modules[1]["name"])
	assert.Equal(t, true, modules[1]["enabled"])
}

func TestStatusHandlerModule(t *testing.T) {
	handler := apiFixture(t)

	var module map[string]any
	w := getJSON(t, handler, "/modules/search", &module)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "loaded", module["status"])

	w = getJSON(t, handler, "/modules/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusHandlerStatistics(t *testing.T) {
	handler := apiFixture(t)

	var stats map[string]any
	w := getJSON(t, handler, "/statistics", &stats)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(2), stats["enabled"])
}

func TestStatusHandlerHealth(t *testing.T) {
	handler := apiFixture(t)

	var health map[string]map[string]any
	w := getJSON(t, handler, "/health", &health)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, health, "core")
	assert.Equal(t, "healthy", health["core"]["status"])
}
