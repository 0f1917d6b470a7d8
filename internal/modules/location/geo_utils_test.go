package location

import (
	"math"
	"testing"

	"taxidispatch/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			lat1:      51.5074, lng1: -0.1278,
			lat2:      51.5074, lng2: -0.1278,
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Charing Cross to Heathrow (~23km)",
			lat1:      51.5080, lng1: -0.1247,
			lat2:      51.4700, lng2: -0.4543,
			wantKm:    23.2,
			tolerance: 1.0,
		},
		{
			name:      "London to Edinburgh (~534km)",
			lat1:      51.5074, lng1: -0.1278,
			lat2:      55.9533, lng2: -3.1883,
			wantKm:    534,
			tolerance: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("haversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	d1 := haversineKm(51.0, -1.0, 52.0, 0.5)
	d2 := haversineKm(52.0, 0.5, 51.0, -1.0)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestHaversineMiles(t *testing.T) {
	a := types.Point{Lat: 51.5074, Lng: -0.1278}
	b := types.Point{Lat: 55.9533, Lng: -3.1883}
	km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	got := HaversineMiles(a, b)
	if math.Abs(got*kmPerMile-km) > 1e-9 {
		t.Errorf("HaversineMiles() = %f, want %f", got, km/kmPerMile)
	}
}

type ranked struct {
	id   string
	dist float64
}

func TestSortByDistance(t *testing.T) {
	items := []ranked{{"c", 5}, {"a", 1}, {"b", 3}}
	SortByDistance(items, func(r ranked) float64 { return r.dist })
	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_Stable(t *testing.T) {
	items := []ranked{{"x", 2}, {"a", 1}, {"y", 2}}
	SortByDistance(items, func(r ranked) float64 { return r.dist })
	if items[1].id != "x" || items[2].id != "y" {
		t.Errorf("equal distances reordered: %v", items)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var items []ranked
	SortByDistance(items, func(r ranked) float64 { return r.dist })
}
