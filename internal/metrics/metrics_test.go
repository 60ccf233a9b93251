package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateSent(10 * time.Millisecond)
	m.UpdateSent(20 * time.Millisecond)
	m.UpdateSkipped(SkipDuplicate)
	m.SendFailed()
	m.ReconnectScheduled()
	m.ReconnectExhausted()
	m.SetBattery(85)
	m.LowBattery()
	m.InboundEvent(InboundInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpdatesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesSkipped.WithLabelValues(SkipDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsExhausted))
	assert.Equal(t, 85.0, testutil.ToFloat64(m.BatteryLevel))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LowBatteryWarnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues(InboundInvalid)))
}

func TestMetrics_ConnectionStateIsExclusive(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	states := []string{"disconnected", "connecting", "connected", "error"}
	m.SetConnectionState("connecting", states...)
	m.SetConnectionState("connected", states...)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("disconnected")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UpdateSent(time.Second)
		m.UpdateSkipped(SkipInFlight)
		m.SendFailed()
		m.SetBattery(1)
		m.SetConnectionState("connected")
		m.InboundEvent(InboundAccepted)
		_ = m.RegisterTerrainCache(func() (uint64, uint64) { return 0, 0 })
	})
}

func TestMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_HandlerExposesTerrainCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	require.NoError(t, m.RegisterTerrainCache(func() (uint64, uint64) { return 7, 3 }))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `takagent_terrain_cache_lookups_total{result="hit"} 7`)
	assert.Contains(t, string(body), `takagent_terrain_cache_lookups_total{result="miss"} 3`)
}
