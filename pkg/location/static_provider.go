package location

import (
	"context"
	"sync"
	"time"

	"github.com/benmeehan/tak-agent/pkg/geodesy"
)

// StaticProvider always reports the same location.
type StaticProvider struct {
	loc Location
}

// NewStaticProvider creates a provider fixed at the given coordinate.
func NewStaticProvider(lat, lon, hae float64) *StaticProvider {
	return &StaticProvider{loc: Location{Latitude: lat, Longitude: lon, Altitude: hae}}
}

// GetLocation returns the configured location.
func (s *StaticProvider) GetLocation(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	return s.loc, nil
}

// Close is a no-op.
func (s *StaticProvider) Close() error { return nil }

// SimulatedProvider dead-reckons from a start point along a constant heading
// at a constant ground speed.
type SimulatedProvider struct {
	mu        sync.Mutex
	start     Location
	heading   float64
	speed     float64
	now       func() time.Time
	startedAt time.Time
}

// NewSimulatedProvider creates a provider that starts moving on the first call.
// heading is in degrees from true north, speed in meters per second.
func NewSimulatedProvider(lat, lon, hae, heading, speed float64) *SimulatedProvider {
	return &SimulatedProvider{
		start:   Location{Latitude: lat, Longitude: lon, Altitude: hae},
		heading: heading,
		speed:   speed,
		now:     time.Now,
	}
}

// WithClock overrides the clock used to compute elapsed travel.
func (s *SimulatedProvider) WithClock(now func() time.Time) *SimulatedProvider {
	s.now = now
	return s
}

// GetLocation returns the position reached after the time elapsed since the first call.
func (s *SimulatedProvider) GetLocation(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	travelled := s.speed * now.Sub(s.startedAt).Seconds()
	lat, lon := geodesy.Destination(s.start.Latitude, s.start.Longitude, s.heading, travelled)

	return Location{Latitude: lat, Longitude: lon, Altitude: s.start.Altitude}, nil
}

// Close is a no-op.
func (s *SimulatedProvider) Close() error { return nil }
