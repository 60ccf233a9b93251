// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons reported on takagent_updates_skipped_total.
const (
	SkipNotConnected = "not_connected"
	SkipUnavailable  = "position_unavailable"
	SkipDuplicate    = "duplicate"
	SkipInFlight     = "in_flight"
)

// Inbound results reported on takagent_inbound_events_total.
const (
	InboundAccepted = "accepted"
	InboundInvalid  = "invalid"
	InboundSelf     = "self"
)

// Metrics bundles the agent's collectors. A nil *Metrics is valid and
// records nothing, so components can run uninstrumented in tests.
type Metrics struct {
	gatherer prometheus.Gatherer
	reg      prometheus.Registerer

	UpdatesSent         prometheus.Counter
	UpdatesSkipped      *prometheus.CounterVec
	SendFailures        prometheus.Counter
	SendDuration        prometheus.Histogram
	ReconnectsScheduled prometheus.Counter
	ReconnectsExhausted prometheus.Counter
	BatteryLevel        prometheus.Gauge
	ConnectionState     *prometheus.GaugeVec
	LowBatteryWarnings  prometheus.Counter
	InboundEvents       *prometheus.CounterVec
}

// New registers the agent metrics against reg, defaulting to the global
// Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		gatherer: gatherer,
		reg:      reg,
		UpdatesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "takagent_updates_sent_total",
			Help: "Position updates successfully sent to the TAK server.",
		}),
		UpdatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takagent_updates_skipped_total",
			Help: "Update ticks that did not send, labeled by reason.",
		}, []string{"reason"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "takagent_send_failures_total",
			Help: "Position updates whose socket send failed.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "takagent_send_duration_seconds",
			Help:    "Latency of a full position update (sample, encode, send).",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "takagent_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a socket close.",
		}),
		ReconnectsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "takagent_reconnects_exhausted_total",
			Help: "Times the reconnect policy gave up after max retries.",
		}),
		BatteryLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "takagent_battery_level",
			Help: "Simulated battery level reported in outgoing events.",
		}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "takagent_connection_state",
			Help: "1 for the current TAK connection state, 0 otherwise.",
		}, []string{"state"}),
		LowBatteryWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "takagent_low_battery_warnings_total",
			Help: "Low-battery warnings raised.",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "takagent_inbound_events_total",
			Help: "Inbound CoT messages, labeled by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.UpdatesSent, m.UpdatesSkipped, m.SendFailures, m.SendDuration,
		m.ReconnectsScheduled, m.ReconnectsExhausted, m.BatteryLevel,
		m.ConnectionState, m.LowBatteryWarnings, m.InboundEvents,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RegisterTerrainCache exports terrain cache hit and miss counts read from stats.
func (m *Metrics) RegisterTerrainCache(stats func() (hits, misses uint64)) error {
	if m == nil {
		return nil
	}
	hit := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "takagent_terrain_cache_lookups_total",
		Help:        "Terrain cache lookups, labeled by result.",
		ConstLabels: prometheus.Labels{"result": "hit"},
	}, func() float64 {
		h, _ := stats()
		return float64(h)
	})
	miss := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "takagent_terrain_cache_lookups_total",
		Help:        "Terrain cache lookups, labeled by result.",
		ConstLabels: prometheus.Labels{"result": "miss"},
	}, func() float64 {
		_, mi := stats()
		return float64(mi)
	})
	if err := m.reg.Register(hit); err != nil {
		return err
	}
	return m.reg.Register(miss)
}

// UpdateSent records a successful position update.
func (m *Metrics) UpdateSent(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesSent.Inc()
	m.SendDuration.Observe(elapsed.Seconds())
}

// UpdateSkipped records an update tick that did not send.
func (m *Metrics) UpdateSkipped(reason string) {
	if m == nil {
		return
	}
	m.UpdatesSkipped.WithLabelValues(reason).Inc()
}

// SendFailed records a failed socket send.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

// ReconnectScheduled records a scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.ReconnectsScheduled.Inc()
}

// ReconnectExhausted records that the reconnect policy gave up.
func (m *Metrics) ReconnectExhausted() {
	if m == nil {
		return
	}
	m.ReconnectsExhausted.Inc()
}

// SetBattery records the current battery level.
func (m *Metrics) SetBattery(level int) {
	if m == nil {
		return
	}
	m.BatteryLevel.Set(float64(level))
}

// LowBattery records a low-battery warning.
func (m *Metrics) LowBattery() {
	if m == nil {
		return
	}
	m.LowBatteryWarnings.Inc()
}

// SetConnectionState marks state as current and every other state in states as inactive.
func (m *Metrics) SetConnectionState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.ConnectionState.WithLabelValues(s).Set(0)
	}
	m.ConnectionState.WithLabelValues(state).Set(1)
}

// InboundEvent records the outcome of handling an inbound CoT message.
func (m *Metrics) InboundEvent(result string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(result).Inc()
}
