package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the IUGG mean earth radius.
	EarthRadiusMeters = 6_371_008.8

	// MinLatitude and MaxLatitude bound valid latitudes in degrees.
	MinLatitude = -90.0
	MaxLatitude = 90.0

	// MinLongitude and MaxLongitude bound valid longitudes in degrees.
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// ErrInvalidCoordinate is returned for non-finite or out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is an immutable latitude/longitude pair in degrees.
type Coordinate struct {
	// Latitude in degrees, positive north.
	Latitude float64
	// Longitude in degrees, positive east.
	Longitude float64
}

// NewCoordinate builds a validated coordinate.
func NewCoordinate(latitude, longitude float64) (Coordinate, error) {
	c := Coordinate{Latitude: latitude, Longitude: longitude}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}

	return c, nil
}

// Validate reports ErrInvalidCoordinate when the coordinate is unusable.
func (c Coordinate) Validate() error {
	if !isFinite(c.Latitude) || c.Latitude < MinLatitude || c.Latitude > MaxLatitude {
		return fmt.Errorf("%w: latitude %v out of range [%v, %v]", ErrInvalidCoordinate, c.Latitude, MinLatitude, MaxLatitude)
	}

	if !isFinite(c.Longitude) || c.Longitude < MinLongitude || c.Longitude > MaxLongitude {
		return fmt.Errorf("%w: longitude %v out of range [%v, %v]", ErrInvalidCoordinate, c.Longitude, MinLongitude, MaxLongitude)
	}

	return nil
}

// String renders the coordinate with six decimals (about 0.1 m).
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	if err := b.Validate(); err != nil {
		return 0, err
	}

	return haversine(a, b), nil
}

// MustDistanceMeters is DistanceMeters for coordinates validated by the caller.
// It panics on invalid input.
func MustDistanceMeters(a, b Coordinate) float64 {
	d, err := DistanceMeters(a, b)
	if err != nil {
		panic(err)
	}

	return d
}

// BearingDegrees returns the initial great-circle bearing from a to b,
// normalized to [0, 360). Identical points yield 0.
func BearingDegrees(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	if err := b.Validate(); err != nil {
		return 0, err
	}

	if a == b {
		return 0, nil
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLon := toRadians(b.Longitude - a.Longitude)

	y := math.Sin(deltaLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLon)

	bearing := math.Mod(toDegrees(math.Atan2(y, x))+360, 360)

	return bearing, nil
}

// Destination returns the point reached by travelling distanceMeters from
// origin along the given initial bearing.
func Destination(origin Coordinate, bearingDegrees, distanceMeters float64) (Coordinate, error) {
	if err := origin.Validate(); err != nil {
		return Coordinate{}, err
	}

	angular := distanceMeters / EarthRadiusMeters
	bearing := toRadians(bearingDegrees)
	lat1 := toRadians(origin.Latitude)
	lon1 := toRadians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalize longitude to [-180, 180].
	lon := math.Mod(toDegrees(lon2)+540, 360) - 180

	return NewCoordinate(toDegrees(lat2), lon)
}

func haversine(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLat := toRadians(b.Latitude - a.Latitude)
	deltaLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Rounding can push h a hair outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
