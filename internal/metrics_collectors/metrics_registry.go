package metrics_collectors

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/models"
)

// MetricsRegistry holds the collectors available to the status service.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// NewDefaultRegistry registers the system collectors. tracks may be nil, in
// which case no track collector is registered.
func NewDefaultRegistry(logger zerolog.Logger, tracks func() int) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(NewCPUMetricCollector(logger))
	r.Register(NewMemoryMetricCollector(logger))
	r.Register(&GoroutineMetricCollector{Logger: logger})
	if tracks != nil {
		r.Register(&TrackMetricCollector{Logger: logger, Count: tracks})
	}
	return r
}

// Register adds a new metric collector to the registry, replacing one with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// Enabled returns the collectors enabled by config, sorted by name.
func (r *MetricsRegistry) Enabled(config *models.MetricsConfig) []MetricCollector {
	var out []MetricCollector
	for _, c := range r.collectors {
		if c.IsEnabled(config) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
