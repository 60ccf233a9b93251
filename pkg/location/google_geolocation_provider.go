package location

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

const googleRequestTimeout = 10 * time.Second

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     *maps.Client // Maps API client for making geolocation requests
	modemIndex int
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
	}, nil
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// Wi-Fi and cell scans are best effort; the request falls back to IP geolocation.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, googleRequestTimeout)
	defer cancel()

	wifiAPs, _ := getWiFiAccessPoints(ctx)
	cellTowers, _ := getCellTowers(ctx, g.modemIndex)

	// Prepare the geolocation request with available data
	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: wifiAPs,
		CellTowers:       cellTowers,
	}

	resp, err := g.client.Geolocate(ctx, req) // Send the geolocation request
	if err != nil {
		return Location{}, fmt.Errorf("geolocation request failed: %w", err)
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}

// Close is a no-op; the maps client holds no persistent connection.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}

// GoogleElevationProvider resolves terrain height with the Google Maps Elevation API.
type GoogleElevationProvider struct {
	client *maps.Client
}

// NewGoogleElevationProvider creates a new GoogleElevationProvider instance.
func NewGoogleElevationProvider(apiKey string) (*GoogleElevationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleElevationProvider{client: c}, nil
}

// Elevation returns the terrain height at a single coordinate.
func (g *GoogleElevationProvider) Elevation(ctx context.Context, lat, lon float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, googleRequestTimeout)
	defer cancel()

	results, err := g.client.Elevation(ctx, &maps.ElevationRequest{
		Locations: []maps.LatLng{{Lat: lat, Lng: lon}},
	})
	if err != nil {
		return 0, fmt.Errorf("elevation request failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("elevation request returned no results")
	}
	return results[0].Elevation, nil
}
