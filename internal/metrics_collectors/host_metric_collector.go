package metrics_collectors

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/benmeehan/tak-agent/internal/models"
)

// HighUsagePercent is the host load above which position updates may start
// to lag behind the update interval.
const HighUsagePercent = 90.0

// HostMetricCollector reports one host utilization percentage. The CPU and
// memory collectors differ only in their sampler.
type HostMetricCollector struct {
	Logger zerolog.Logger

	name        string
	description string
	sample      func(ctx context.Context) (float64, error)
	enabled     func(config *models.MetricsConfig) bool
}

// NewCPUMetricCollector samples CPU utilization across all cores.
func NewCPUMetricCollector(logger zerolog.Logger) *HostMetricCollector {
	return &HostMetricCollector{
		Logger:      logger,
		name:        "cpu",
		description: "Percentage of CPU utilization across all cores.",
		sample:      sampleCPU,
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorCPU },
	}
}

// NewMemoryMetricCollector samples used virtual memory.
func NewMemoryMetricCollector(logger zerolog.Logger) *HostMetricCollector {
	return &HostMetricCollector{
		Logger:      logger,
		name:        "memory",
		description: "Percentage of used virtual memory.",
		sample:      sampleMemory,
		enabled:     func(c *models.MetricsConfig) bool { return c.MonitorMemory },
	}
}

func sampleCPU(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, errors.New("CPU usage data is empty")
	}
	return percentages[0], nil
}

func sampleMemory(ctx context.Context) (float64, error) {
	stats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return stats.UsedPercent, nil
}

func (h *HostMetricCollector) Name() string {
	return h.name
}

// Collect returns the sampled percentage, or nil when sampling fails. Usage
// above HighUsagePercent is logged as a warning.
func (h *HostMetricCollector) Collect(ctx context.Context) interface{} {
	v, err := h.sample(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Str("metric", h.name).Msg("Failed to collect host metric")
		return nil
	}

	event := h.Logger.Debug()
	if v >= HighUsagePercent {
		event = h.Logger.Warn()
	}
	event.Str("metric", h.name).Float64("percent", v).Msg("Host metric collected")
	return &v
}

func (h *HostMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return h.enabled(config)
}

func (h *HostMetricCollector) Unit() string {
	return "percentage"
}

func (h *HostMetricCollector) Description() string {
	return h.description
}
