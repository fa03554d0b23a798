package modreg

import (
	"time"
)

// Stats is an aggregate view over all registered modules. The status buckets
// partition Total: every module is counted in exactly one of Enabled,
// Disabled or Errors at query time.
type Stats struct {
	// Total is the number of registered modules.
	Total int `json:"total"`

	// Enabled counts modules with status loaded and enabled config.
	Enabled int `json:"enabled"`

	// Disabled counts modules with status disabled.
	Disabled int `json:"disabled"`

	// Errors counts modules with status error.
	Errors int `json:"errors"`

	// ByCategory counts modules per category name.
	ByCategory map[string]int `json:"byCategory"`

	// ByStatus counts modules per status name.
	ByStatus map[string]int `json:"byStatus"`

	// AverageLoadTime is the mean time Register spent per module.
	AverageLoadTime time.Duration `json:"averageLoadTime"`

	// EstimatedMemory is a rough byte estimate of registry-held metadata.
	EstimatedMemory int64 `json:"estimatedMemory"`
}

// Statistics computes aggregate counts over the registry. Pure read, O(n)
// over registered modules.
func (r *Registry) Statistics() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		ByCategory: make(map[string]int),
		ByStatus:   make(map[string]int),
	}

	var totalLoad time.Duration
	for _, meta := range r.modules {
		stats.Total++
		stats.ByCategory[meta.config.Category.String()]++
		stats.ByStatus[meta.status.String()]++

		switch {
		case meta.status == StatusLoaded && meta.config.Enabled:
			stats.Enabled++
		case meta.status == StatusError:
			stats.Errors++
		default:
			stats.Disabled++
		}

		totalLoad += meta.loadTime
		stats.EstimatedMemory += estimateConfigMemory(meta.config)
	}

	if stats.Total > 0 {
		stats.AverageLoadTime = totalLoad / time.Duration(stats.Total)
	}
	return stats
}

// estimateConfigMemory approximates the bytes held for one module: string
// payload plus a fixed overhead per record for the metadata bookkeeping.
func estimateConfigMemory(config ModuleConfig) int64 {
	const recordOverhead = 256

	size := int64(recordOverhead)
	size += int64(len(config.Name) + len(config.Version))
	for _, dep := range config.Dependencies {
		size += int64(len(dep))
	}
	for _, flag := range config.RequiredFeatures {
		size += int64(len(flag))
	}
	for _, flag := range config.OptionalFeatures {
		size += int64(len(flag))
	}
	return size
}
