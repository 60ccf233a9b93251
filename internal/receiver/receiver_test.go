package receiver

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/tak-agent/internal/metrics"
)

func event(uid, typ, callsign string, lat, lon float64) []byte {
	return []byte(fmt.Sprintf(`<event version="2.0" uid="%s" type="%s" time="2024-01-01T00:00:00.000+00:00" how="m-g">
  <point lat="%f" lon="%f" hae="12.5" ce="5.0" le="7.0"/>
  <detail>
    <contact callsign="%s"/>
    <__group name="Red" role="HQ"/>
    <status battery="80"/>
    <track course="45.0" speed="3.5"/>
  </detail>
</event>`, uid, typ, lat, lon, callsign))
}

func newTestReceiver(t *testing.T) (*Receiver, *metrics.Metrics, *time.Time) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	r := NewReceiver("SELF", nil, zerolog.Nop(), m).WithClock(func() time.Time { return now })
	return r, m, &now
}

func TestReceiver_UpsertsTracks(t *testing.T) {
	r, m, now := newTestReceiver(t)

	r.HandleMessage(event("B-1", "a-h-G-U-C", "Bravo", 10, 20))
	*now = now.Add(5 * time.Second)
	r.HandleMessage(event("B-1", "a-h-G-U-C", "Bravo", 10.5, 20.5))

	require.Equal(t, 1, r.Len())
	track, ok := r.Get("B-1")
	require.True(t, ok)
	assert.Equal(t, 2, track.Updates)
	assert.Equal(t, 10.5, track.Event.Lat)
	assert.Equal(t, 12.5, track.Event.HAE)
	assert.Equal(t, "Red", track.Event.Group)
	assert.Equal(t, 80.0, track.Event.Battery)
	assert.Equal(t, time.Unix(1000, 0), track.FirstSeen)
	assert.Equal(t, time.Unix(1005, 0), track.LastSeen)
	assert.Equal(t, "Person:Bravo", track.Label)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues(metrics.InboundAccepted)))
}

func TestReceiver_DropsInvalidAndSelf(t *testing.T) {
	r, m, _ := newTestReceiver(t)

	r.HandleMessage([]byte("not xml"))
	r.HandleMessage([]byte(`<event uid="X"><detail/></event>`))
	r.HandleMessage(event("SELF", "a-h-G-U-C", "Me", 1, 2))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues(metrics.InboundInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues(metrics.InboundSelf)))
}

func TestReceiver_DropsNonFiniteCoordinates(t *testing.T) {
	r, m, _ := newTestReceiver(t)

	r.HandleMessage([]byte(`<event uid="N-1" type="a-h-G-U-C"><point lat="NaN" lon="NaN"/></event>`))
	r.HandleMessage([]byte(`<event uid="N-2" type="a-h-G-U-C"><point lat="1" lon="Inf"/></event>`))

	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("N-1")
	assert.False(t, ok)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues(metrics.InboundInvalid)))
}

func TestReceiver_Labels(t *testing.T) {
	r, _, _ := newTestReceiver(t)

	tests := []struct {
		typ  string
		want string
	}{
		{"a-h-G-U-C", "Person:Charlie"},
		{"a-f-G-U-C", "UAV:3.5km/h"},
		{"a-v-G-U-C", "Vehicle:Red"},
		{"b-m-p-s-p-i", "Charlie"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			r.HandleMessage(event("C-"+tt.typ, tt.typ, "Charlie", 1, 2))
			track, ok := r.Get("C-" + tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.want, track.Label)
		})
	}

	bare := NewReceiver("SELF", map[string]string{"a-f-A": "Air:${callsign}"}, zerolog.Nop(), nil)
	bare.HandleMessage([]byte(`<event uid="D"><point lat="1" lon="2"/></event>`))
	track, ok := bare.Get("D")
	require.True(t, ok)
	assert.Equal(t, unknownLabel, track.Label)
}

func TestReceiver_RemoveClearTracks(t *testing.T) {
	r, _, _ := newTestReceiver(t)
	r.HandleMessage(event("C", "a-h-G-U-C", "c", 1, 1))
	r.HandleMessage(event("A", "a-h-G-U-C", "a", 1, 1))
	r.HandleMessage(event("B", "a-h-G-U-C", "b", 1, 1))

	tracks := r.Tracks()
	require.Len(t, tracks, 3)
	assert.Equal(t, "A", tracks[0].Event.UID)
	assert.Equal(t, "C", tracks[2].Event.UID)

	assert.True(t, r.Remove("B"))
	assert.False(t, r.Remove("B"))
	assert.Equal(t, 2, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Tracks())
}

func TestReceiver_Prune(t *testing.T) {
	r, _, now := newTestReceiver(t)
	r.HandleMessage(event("OLD", "a-h-G-U-C", "o", 1, 1))
	*now = now.Add(time.Minute)
	r.HandleMessage(event("NEW", "a-h-G-U-C", "n", 1, 1))

	assert.Equal(t, 1, r.Prune(30*time.Second))
	_, ok := r.Get("OLD")
	assert.False(t, ok)
	_, ok = r.Get("NEW")
	assert.True(t, ok)
}

func TestReceiver_AcceptsUnexpectedVersion(t *testing.T) {
	r, _, _ := newTestReceiver(t)
	r.HandleMessage([]byte(`<event version="3.1" uid="V"><point lat="1" lon="2"/></event>`))
	r.HandleMessage([]byte(`<event version="bogus" uid="W"><point lat="1" lon="2"/></event>`))
	assert.Equal(t, 2, r.Len())
}

func TestReceiver_ConcurrentMessages(t *testing.T) {
	r := NewReceiver("SELF", nil, zerolog.Nop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.HandleMessage(event("SAME", "a-h-G-U-C", "s", 1, 1))
		}()
	}
	wg.Wait()

	track, ok := r.Get("SAME")
	require.True(t, ok)
	assert.Equal(t, 50, track.Updates)
}
