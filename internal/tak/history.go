package tak

import (
	"math"

	"github.com/benmeehan/tak-agent/pkg/geodesy"
	"github.com/benmeehan/tak-agent/pkg/location"
)

// PositionHistory is a bounded FIFO of sent positions. It is not safe for
// concurrent use; the Client guards it with its own lock.
type PositionHistory struct {
	entries   []location.GeoPosition
	capacity  int
	threshold float64
}

// NewPositionHistory returns an empty history holding at most capacity entries.
func NewPositionHistory(capacity int, threshold float64) *PositionHistory {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &PositionHistory{
		entries:   make([]location.GeoPosition, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// Append adds pos, evicting the oldest entry when full.
func (h *PositionHistory) Append(pos location.GeoPosition) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, pos)
}

func (h *PositionHistory) Len() int {
	return len(h.entries)
}

// Last returns the most recent position.
func (h *PositionHistory) Last() (location.GeoPosition, bool) {
	if len(h.entries) == 0 {
		return location.GeoPosition{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the history, oldest first.
func (h *PositionHistory) Entries() []location.GeoPosition {
	out := make([]location.GeoPosition, len(h.entries))
	copy(out, h.entries)
	return out
}

// IsDuplicate reports whether pos is within the threshold of the last position
// on both axes.
func (h *PositionHistory) IsDuplicate(pos location.GeoPosition) bool {
	last, ok := h.Last()
	if !ok {
		return false
	}
	return math.Abs(pos.Lat-last.Lat) < h.threshold && math.Abs(pos.Lon-last.Lon) < h.threshold
}

// BearingDegrees is the initial bearing between the last two entries, 0 with fewer.
func (h *PositionHistory) BearingDegrees() float64 {
	n := len(h.entries)
	if n < 2 {
		return 0
	}
	return bearing(h.entries[n-2], h.entries[n-1])
}

// SpeedMetersPerSecond is the ECEF chord speed between the last two entries,
// 0 with fewer entries or a non-positive time step.
func (h *PositionHistory) SpeedMetersPerSecond() float64 {
	n := len(h.entries)
	if n < 2 {
		return 0
	}
	return speed(h.entries[n-2], h.entries[n-1])
}

// MotionTo returns bearing and speed from the last position to pos.
func (h *PositionHistory) MotionTo(pos location.GeoPosition) (float64, float64) {
	last, ok := h.Last()
	if !ok {
		return 0, 0
	}
	return bearing(last, pos), speed(last, pos)
}

func bearing(from, to location.GeoPosition) float64 {
	return geodesy.InitialBearing(from.Lat, from.Lon, to.Lat, to.Lon)
}

func speed(from, to location.GeoPosition) float64 {
	elapsed := float64(to.Timestamp-from.Timestamp) / 1000
	if elapsed <= 0 {
		return 0
	}
	return geodesy.ChordDistance(from.Lat, from.Lon, from.HAE, to.Lat, to.Lon, to.HAE) / elapsed
}
