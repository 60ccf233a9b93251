package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/tak-agent/pkg/geodesy"
)

// ErrPositionUnavailable is returned when a position cannot be sampled.
// Callers are expected to skip the update rather than fail.
var ErrPositionUnavailable = errors.New("position unavailable")

// PositionSource produces timestamped GeoPositions from a location provider,
// optionally replacing the provider's height with cached terrain elevation.
type PositionSource struct {
	provider Provider
	terrain  *TerrainCache
	now      func() time.Time
}

// NewPositionSource creates a PositionSource. terrain may be nil, in which case
// the provider's own altitude is used.
func NewPositionSource(provider Provider, terrain *TerrainCache) *PositionSource {
	return &PositionSource{
		provider: provider,
		terrain:  terrain,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock used for timestamps.
func (s *PositionSource) WithClock(now func() time.Time) *PositionSource {
	s.now = now
	return s
}

// Terrain returns the terrain cache, or nil when terrain lookup is disabled.
func (s *PositionSource) Terrain() *TerrainCache {
	return s.terrain
}

// Sample reads the current location and resolves its height.
func (s *PositionSource) Sample(ctx context.Context) (GeoPosition, error) {
	loc, err := s.provider.GetLocation(ctx)
	if err != nil {
		return GeoPosition{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	if !geodesy.ValidCoordinate(loc.Latitude, loc.Longitude) {
		return GeoPosition{}, fmt.Errorf("%w: invalid coordinate (%f, %f)",
			ErrPositionUnavailable, loc.Latitude, loc.Longitude)
	}

	hae := loc.Altitude
	if s.terrain != nil {
		hae, err = s.terrain.Height(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			return GeoPosition{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
		}
	}

	return GeoPosition{
		Lat:       loc.Latitude,
		Lon:       loc.Longitude,
		HAE:       hae,
		Timestamp: s.now().UnixMilli(),
	}, nil
}

// Close releases the underlying provider.
func (s *PositionSource) Close() error {
	return s.provider.Close()
}
