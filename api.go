package modreg

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// moduleResponse is the JSON shape served for one module. It flattens the
// snapshot and renders the error as a string.
type moduleResponse struct {
	Name    string       `json:"name"`
	Config  ModuleConfig `json:"config"`
	Status  string       `json:"status"`
	Enabled bool         `json:"enabled"`
	Error   string       `json:"error,omitempty"`
	Metrics Metrics      `json:"metrics"`
	Health  HealthRecord `json:"health"`
}

func newModuleResponse(info ModuleInfo) moduleResponse {
	resp := moduleResponse{
		Name:    info.Config.Name,
		Config:  info.Config,
		Status:  info.Status.String(),
		Enabled: info.Status == StatusLoaded && info.Config.Enabled,
		Metrics: info.Metrics,
		Health:  info.Health,
	}
	if info.Err != nil {
		resp.Error = info.Err.Error()
	}
	return resp
}

// NewStatusHandler returns the read-only observability surface over a
// registry, for mounting in a dashboard or health-check server:
//
//	GET /modules          — all modules
//	GET /modules/{name}   — one module
//	GET /statistics       — aggregate stats
//	GET /health           — health records keyed by module name
//
// The handler only reads; the registry has no dependency on it.
func NewStatusHandler(reg *Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/modules", func(w http.ResponseWriter, req *http.Request) {
		names := reg.ModuleNames()
		modules := make([]moduleResponse, 0, len(names))
		for _, name := range names {
			if info, err := reg.GetModule(name); err == nil {
				modules = append(modules, newModuleResponse(info))
			}
		}
		writeJSON(w, http.StatusOK, modules)
	})

	r.Get("/modules/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		info, err := reg.GetModule(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, newModuleResponse(info))
	})

	r.Get("/statistics", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, reg.Statistics())
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := make(map[string]HealthRecord)
		for _, name := range reg.ModuleNames() {
			if info, err := reg.GetModule(name); err == nil {
				health[name] = info.Health
			}
		}
		writeJSON(w, http.StatusOK, health)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
