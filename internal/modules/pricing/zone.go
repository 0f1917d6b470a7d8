package pricing

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"taxidispatch/internal/types"
)

// FindZone returns the first zone, in slice order, whose polygon contains p.
func FindZone(zones []Zone, p types.Point) (Zone, bool) {
	for _, z := range zones {
		if z.Contains(p) {
			return z, true
		}
	}
	return Zone{}, false
}

// Contains runs a bounding-box check and then ray casting. Points on an edge may
// fall either way.
func (z Zone) Contains(p types.Point) bool {
	n := len(z.Polygon)
	if n < 3 {
		return false
	}
	if !ringBounds(z.Polygon).OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat}) {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := z.Polygon[i], z.Polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lng < (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
	}
	return inside
}

func ringBounds(poly []types.Point) *geom.Bounds {
	flat := make([]float64, 0, 2*len(poly))
	for _, v := range poly {
		flat = append(flat, v.Lng, v.Lat)
	}
	return geom.NewLinearRingFlat(geom.XY, flat).Bounds()
}

// MatchZonePrice finds the price for a zone pair, trying the reverse pair for
// reversible entries when the booked direction has none.
func MatchZonePrice(prices []ZonePrice, from, to types.ID, vehicleType string) (ZonePrice, bool) {
	var reverse *ZonePrice
	for i, zp := range prices {
		if !strings.EqualFold(strings.TrimSpace(zp.VehicleType), strings.TrimSpace(vehicleType)) {
			continue
		}
		if zp.FromZoneID == from && zp.ToZoneID == to {
			return zp, true
		}
		if reverse == nil && zp.IsReverse && zp.FromZoneID == to && zp.ToZoneID == from {
			reverse = &prices[i]
		}
	}
	if reverse != nil {
		return *reverse, true
	}
	return ZonePrice{}, false
}

// EncodePolygon renders an open ring as a GeoJSON Polygon.
func EncodePolygon(poly []types.Point) (string, error) {
	if len(poly) < 3 {
		return "", fmt.Errorf("%w: polygon needs at least 3 vertices", ErrBadRequest)
	}
	ring := make([]geom.Coord, 0, len(poly)+1)
	for _, v := range poly {
		ring = append(ring, geom.Coord{v.Lng, v.Lat})
	}
	ring = append(ring, ring[0])
	g, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
	if err != nil {
		return "", err
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePolygon parses the outer ring of a GeoJSON Polygon, dropping the closing vertex.
func DecodePolygon(data string) ([]types.Point, error) {
	var g geom.T
	if err := geojson.Unmarshal([]byte(data), &g); err != nil {
		return nil, err
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("zone geometry is %T, want polygon", g)
	}
	if poly.NumLinearRings() == 0 {
		return nil, nil
	}
	coords := poly.LinearRing(0).Coords()
	if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}
	out := make([]types.Point, 0, len(coords))
	for _, c := range coords {
		out = append(out, types.Point{Lat: c.Y(), Lng: c.X()})
	}
	return out, nil
}
