package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"taxidispatch/internal/types"
)

var ErrNoGeocodeResult = errors.New("address not found")

// GeocodeService turns free-text addresses into coordinates.
type GeocodeService struct {
	client *maps.Client
	region string
}

func NewGeocodeService(apiKey, region string, opts ...maps.ClientOption) (*GeocodeService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client, region: region}, nil
}

// Geocode returns the first result's location. Partial matches are accepted; the
// pricing path prefers an approximate coordinate over no coordinate.
func (s *GeocodeService) Geocode(ctx context.Context, address string) (types.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Point{}, ErrNoGeocodeResult
	}
	resp, err := s.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  s.region,
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(resp) == 0 {
		return types.Point{}, fmt.Errorf("%w: %q", ErrNoGeocodeResult, address)
	}
	loc := resp[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
