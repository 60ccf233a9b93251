package geodesy

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared

	// MeanEarthRadius is the IUGG mean radius used for spherical calculations.
	MeanEarthRadius = 6371008.8
)

// ECEF is an Earth-centered, Earth-fixed Cartesian position in meters.
type ECEF struct {
	X, Y, Z float64
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// GeodeticToECEF converts a geodetic position to ECEF coordinates.
// Latitude and longitude are in degrees, height in meters above the WGS-84 ellipsoid.
func GeodeticToECEF(latDeg, lonDeg, heightM float64) ECEF {
	lat := ToRadians(latDeg)
	lon := ToRadians(lonDeg)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ECEF{
		X: (n + heightM) * cosLat * math.Cos(lon),
		Y: (n + heightM) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + heightM) * sinLat,
	}
}

// Distance returns the straight-line distance between two ECEF points.
func (p ECEF) Distance(q ECEF) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ChordDistance returns the straight-line (not great-circle) distance in meters
// between two geodetic positions.
func ChordDistance(lat1, lon1, h1, lat2, lon2, h2 float64) float64 {
	return GeodeticToECEF(lat1, lon1, h1).Distance(GeodeticToECEF(lat2, lon2, h2))
}

// InitialBearing returns the initial great-circle bearing from the first
// point to the second, in degrees within [0, 360).
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := ToRadians(lat1)
	phi2 := ToRadians(lat2)
	dLon := ToRadians(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)

	return math.Mod(ToDegrees(math.Atan2(y, x))+360, 360)
}

// Destination returns the point reached by travelling distanceM meters from
// (lat, lon) along the given initial bearing on a spherical Earth.
func Destination(latDeg, lonDeg, bearingDeg, distanceM float64) (float64, float64) {
	delta := distanceM / MeanEarthRadius
	theta := ToRadians(bearingDeg)
	phi1 := ToRadians(latDeg)
	lambda1 := ToRadians(lonDeg)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	lon := math.Mod(ToDegrees(lambda2)+540, 360) - 180
	return ToDegrees(phi2), lon
}

// ValidCoordinate reports whether lat/lon are finite and within range.
func ValidCoordinate(latDeg, lonDeg float64) bool {
	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) || math.IsInf(latDeg, 0) || math.IsInf(lonDeg, 0) {
		return false
	}
	return latDeg >= -90 && latDeg <= 90 && lonDeg >= -180 && lonDeg <= 180
}
