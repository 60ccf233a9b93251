package tak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/tak-agent/pkg/location"
)

func TestPositionHistory_EvictsOldest(t *testing.T) {
	h := NewPositionHistory(100, DefaultDuplicateThreshold)
	for i := 0; i < 101; i++ {
		h.Append(location.GeoPosition{Lat: float64(i) * 0.001, Timestamp: int64(i)})
	}

	require.Equal(t, 100, h.Len())
	entries := h.Entries()
	assert.Equal(t, int64(1), entries[0].Timestamp)
	assert.Equal(t, int64(100), entries[99].Timestamp)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, int64(100), last.Timestamp)
}

func TestPositionHistory_EntriesIsCopy(t *testing.T) {
	h := NewPositionHistory(4, DefaultDuplicateThreshold)
	h.Append(location.GeoPosition{Lat: 1})
	entries := h.Entries()
	entries[0].Lat = 99

	last, _ := h.Last()
	assert.Equal(t, 1.0, last.Lat)
}

func TestPositionHistory_ZeroWithFewerThanTwo(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	assert.Equal(t, 0.0, h.BearingDegrees())
	assert.Equal(t, 0.0, h.SpeedMetersPerSecond())
	_, ok := h.Last()
	assert.False(t, ok)

	h.Append(location.GeoPosition{Lat: 10, Lon: 10, Timestamp: 1000})
	assert.Equal(t, 0.0, h.BearingDegrees())
	assert.Equal(t, 0.0, h.SpeedMetersPerSecond())
}

func TestPositionHistory_BearingEast(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	h.Append(location.GeoPosition{Lat: 0, Lon: 0, Timestamp: 0})
	h.Append(location.GeoPosition{Lat: 0, Lon: 1, Timestamp: 1000})

	assert.InDelta(t, 90.0, h.BearingDegrees(), 0.1)
}

func TestPositionHistory_BearingIsNormalized(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	h.Append(location.GeoPosition{Lat: 0, Lon: 1, Timestamp: 0})
	h.Append(location.GeoPosition{Lat: 0, Lon: 0, Timestamp: 1000})

	assert.InDelta(t, 270.0, h.BearingDegrees(), 0.1)
}

func TestPositionHistory_Speed(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	// A pure height change is a 1000 m chord along the ECEF normal.
	h.Append(location.GeoPosition{Lat: 45, Lon: 7, HAE: 0, Timestamp: 0})
	h.Append(location.GeoPosition{Lat: 45, Lon: 7, HAE: 1000, Timestamp: 10_000})

	assert.InDelta(t, 0.1, h.SpeedMetersPerSecond(), 1e-9)
}

func TestPositionHistory_SpeedNonPositiveElapsed(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	h.Append(location.GeoPosition{Lat: 0, Lon: 0, Timestamp: 5000})
	h.Append(location.GeoPosition{Lat: 0, Lon: 1, Timestamp: 5000})
	assert.Equal(t, 0.0, h.SpeedMetersPerSecond())

	h.Append(location.GeoPosition{Lat: 0, Lon: 2, Timestamp: 4000})
	assert.Equal(t, 0.0, h.SpeedMetersPerSecond())
}

func TestPositionHistory_IsDuplicate(t *testing.T) {
	h := NewPositionHistory(10, 1e-6)
	base := location.GeoPosition{Lat: 48.1, Lon: 11.5}
	assert.False(t, h.IsDuplicate(base))

	h.Append(base)
	tests := []struct {
		name string
		pos  location.GeoPosition
		want bool
	}{
		{"identical", base, true},
		{"sub-threshold jitter", location.GeoPosition{Lat: 48.1 + 5e-7, Lon: 11.5 - 5e-7}, true},
		{"height only", location.GeoPosition{Lat: 48.1, Lon: 11.5, HAE: 100}, true},
		{"moved north", location.GeoPosition{Lat: 48.1 + 2e-6, Lon: 11.5}, false},
		{"moved east", location.GeoPosition{Lat: 48.1, Lon: 11.5 + 2e-6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.IsDuplicate(tt.pos))
		})
	}
}

func TestPositionHistory_MotionTo(t *testing.T) {
	h := NewPositionHistory(10, DefaultDuplicateThreshold)
	course, speed := h.MotionTo(location.GeoPosition{Lat: 1, Lon: 1, Timestamp: 1000})
	assert.Equal(t, 0.0, course)
	assert.Equal(t, 0.0, speed)

	h.Append(location.GeoPosition{Lat: 0, Lon: 0, Timestamp: 0})
	course, speed = h.MotionTo(location.GeoPosition{Lat: 1, Lon: 0, Timestamp: 100_000})
	assert.InDelta(t, 0.0, course, 1e-9)
	// One degree of latitude is about 110.6 km at the equator.
	assert.InDelta(t, 1105.7, speed, 1.0)
	assert.Equal(t, 1, h.Len())
}
