package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/models"
)

// GoroutineMetricCollector collects the number of active goroutines.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineMetricCollector) Collect(ctx context.Context) interface{} {
	n := float64(runtime.NumGoroutine())
	g.Logger.Debug().Float64("goroutines", n).Msg("Goroutine count collected")
	return &n
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorGoroutines
}

func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}

func (g *GoroutineMetricCollector) Description() string {
	return "Number of active goroutines in the agent."
}

// TrackMetricCollector reports how many remote tracks the receiver holds.
type TrackMetricCollector struct {
	Logger zerolog.Logger
	Count  func() int
}

func (t *TrackMetricCollector) Name() string {
	return "tracks"
}

func (t *TrackMetricCollector) Collect(ctx context.Context) interface{} {
	n := float64(t.Count())
	return &n
}

func (t *TrackMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorTracks
}

func (t *TrackMetricCollector) Unit() string {
	return "count"
}

func (t *TrackMetricCollector) Description() string {
	return "Number of remote tracks currently known."
}
