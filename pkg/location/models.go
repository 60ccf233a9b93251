package location

// Location represents the geographical coordinates of a device.
type Location struct {
	Latitude  float64
	Longitude float64
	// Altitude is height above the WGS-84 ellipsoid in meters, when the provider knows it.
	Altitude float64
	Accuracy float64
}

// GeoPosition is a single accepted position sample.
// Lat/Lon are degrees, HAE is meters above the ellipsoid, Timestamp is Unix milliseconds.
type GeoPosition struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	HAE       float64 `json:"hae"`
	Timestamp int64   `json:"timestamp"`
}
