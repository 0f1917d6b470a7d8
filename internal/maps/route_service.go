package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"taxidispatch/internal/types"
)

const metresPerMile = 1609.344

var ErrNoRoute = errors.New("no route found")

// RouteService resolves road distances through the Distance Matrix API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key. Extra
// options are applied after the key (e.g. maps.WithBaseURL).
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// RoadMiles returns the driving distance between two coordinates in miles.
func (s *RouteService) RoadMiles(ctx context.Context, from, to types.Point) (float64, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:      []string{from.String()},
		Destinations: []string{to.String()},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsImperial,
	}

	resp, err := s.client.DistanceMatrix(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("%w: element status %s", ErrNoRoute, el.Status)
	}
	return float64(el.Distance.Meters) / metresPerMile, nil
}
