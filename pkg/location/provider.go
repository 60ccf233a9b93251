package location

import "context"

// Provider interface defines the methods for location providers
type Provider interface {
	GetLocation(ctx context.Context) (Location, error)
	Close() error
}

// ElevationProvider resolves terrain height for a coordinate.
type ElevationProvider interface {
	Elevation(ctx context.Context, lat, lon float64) (float64, error)
}

// ElevationFunc adapts a plain function to ElevationProvider.
type ElevationFunc func(ctx context.Context, lat, lon float64) (float64, error)

// Elevation calls f.
func (f ElevationFunc) Elevation(ctx context.Context, lat, lon float64) (float64, error) {
	return f(ctx, lat, lon)
}
