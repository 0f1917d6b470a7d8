// README: Coordinate value types and their text form at the storage boundary.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrMalformedLocation = errors.New("malformed location")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) InRange() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// String is the canonical storage form, "lat,lng".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

// NullPoint is an optional coordinate. The zero value is absent.
type NullPoint struct {
	Point
	Valid bool
}

func SomePoint(lat, lng float64) NullPoint {
	return NullPoint{Point: Point{Lat: lat, Lng: lng}, Valid: true}
}

// PointFromPtrs builds a NullPoint from optional request fields; both must be set.
func PointFromPtrs(lat, lng *float64) NullPoint {
	if lat == nil || lng == nil {
		return NullPoint{}
	}
	p := Point{Lat: *lat, Lng: *lng}
	if !p.InRange() {
		return NullPoint{}
	}
	return NullPoint{Point: p, Valid: true}
}

// ParseNullPoint parses a stored location. Empty input is a valid absent point.
// Accepted forms are "lat,lng" and {"lat":..,"lng":..} (also "latitude"/"longitude").
func ParseNullPoint(s string) (NullPoint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return NullPoint{}, nil
	}
	var p Point
	if strings.HasPrefix(s, "{") {
		var raw struct {
			Lat       *float64 `json:"lat"`
			Lng       *float64 `json:"lng"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return NullPoint{}, fmt.Errorf("%w: %v", ErrMalformedLocation, err)
		}
		lat, lng := raw.Lat, raw.Lng
		if lat == nil {
			lat = raw.Latitude
		}
		if lng == nil {
			lng = raw.Longitude
		}
		if lat == nil || lng == nil {
			return NullPoint{}, fmt.Errorf("%w: missing lat/lng in %q", ErrMalformedLocation, s)
		}
		p = Point{Lat: *lat, Lng: *lng}
	} else {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return NullPoint{}, fmt.Errorf("%w: %q", ErrMalformedLocation, s)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return NullPoint{}, fmt.Errorf("%w: %q", ErrMalformedLocation, s)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return NullPoint{}, fmt.Errorf("%w: %q", ErrMalformedLocation, s)
		}
		p = Point{Lat: lat, Lng: lng}
	}
	if !p.InRange() {
		return NullPoint{}, fmt.Errorf("%w: out of range %q", ErrMalformedLocation, s)
	}
	return NullPoint{Point: p, Valid: true}, nil
}

// Text returns the storage form, or nil when absent.
func (n NullPoint) Text() *string {
	if !n.Valid {
		return nil
	}
	s := n.Point.String()
	return &s
}

func (n NullPoint) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Point)
}

func (n *NullPoint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullPoint{}
		return nil
	}
	var p Point
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.InRange() {
		return ErrMalformedLocation
	}
	*n = NullPoint{Point: p, Valid: true}
	return nil
}
