// README: Distance resolution request/result types and provider contracts.
package location

import (
	"context"
	"errors"

	"taxidispatch/internal/types"
)

var ErrDistanceUnavailable = errors.New("distance unavailable")

type Method string

const (
	MethodRoad        Method = "road"
	MethodGreatCircle Method = "great_circle"
)

// Route describes a trip to measure. Coordinates are optional; addresses are
// geocoded when a coordinate is absent.
type Route struct {
	Pickup       string
	Dropoff      string
	Vias         []string
	PickupCoord  types.NullPoint
	DropoffCoord types.NullPoint
}

type Distance struct {
	Miles   float64
	Method  Method
	Pickup  types.Point
	Dropoff types.Point
}

// Geocoder resolves a free-text address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// Router returns road distance between two coordinates.
type Router interface {
	RoadMiles(ctx context.Context, from, to types.Point) (float64, error)
}

type GeocodeCache interface {
	Get(ctx context.Context, address string) (types.Point, bool, error)
	Set(ctx context.Context, address string, p types.Point) error
}
