package tak

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/metrics"
)

const (
	InitialBattery      = 100
	SendFailurePenalty  = 5
	LowBatteryThreshold = 20
)

// Health simulates a battery that drains on every failed send.
type Health struct {
	mu      sync.Mutex
	battery int
	onLow   func(level int)
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewHealth returns a full battery. onLow may be nil.
func NewHealth(logger zerolog.Logger, m *metrics.Metrics, onLow func(level int)) *Health {
	m.SetBattery(InitialBattery)
	return &Health{
		battery: InitialBattery,
		onLow:   onLow,
		logger:  logger,
		metrics: m,
	}
}

func (h *Health) Battery() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.battery
}

// OnSendFailure drains the battery and raises the low-battery warning when the
// level first drops to or below the threshold. It returns the new level.
func (h *Health) OnSendFailure() int {
	h.mu.Lock()
	prev := h.battery
	h.battery = max(h.battery-SendFailurePenalty, 0)
	level := h.battery
	h.mu.Unlock()

	h.metrics.SetBattery(level)
	if prev > LowBatteryThreshold && level <= LowBatteryThreshold {
		h.logger.Warn().Int("battery", level).Msg("Battery low")
		h.metrics.LowBattery()
		if h.onLow != nil {
			h.onLow(level)
		}
	}
	return level
}
