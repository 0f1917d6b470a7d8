// README: Distance resolver: geocodes missing coordinates, prefers road distance, falls back to great-circle.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"taxidispatch/internal/observability"
	"taxidispatch/internal/types"
)

const defaultProviderTimeout = 3 * time.Second

type Service struct {
	geocoder Geocoder
	router   Router
	cache    GeocodeCache
	timeout  time.Duration
	log      logrus.FieldLogger
	group    singleflight.Group
}

// NewService accepts nil geocoder, router and cache. Without a router every distance is
// great-circle; without a geocoder only routes with coordinates can be measured.
func NewService(geocoder Geocoder, router Router, cache GeocodeCache, timeout time.Duration, log logrus.FieldLogger) *Service {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Service{
		geocoder: geocoder,
		router:   router,
		cache:    cache,
		timeout:  timeout,
		log:      log,
	}
}

// Locate returns known when it is set, otherwise geocodes address.
func (s *Service) Locate(ctx context.Context, address string, known types.NullPoint) (types.Point, error) {
	if known.Valid {
		return known.Point, nil
	}
	if normalizeAddress(address) == "" {
		return types.Point{}, fmt.Errorf("%w: empty address", ErrDistanceUnavailable)
	}
	if s.geocoder == nil {
		return types.Point{}, fmt.Errorf("%w: no geocoder configured", ErrDistanceUnavailable)
	}

	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, address)
		if err != nil {
			s.log.WithError(err).Warn("geocode cache read failed")
		} else if ok {
			return p, nil
		}
	}

	// The shared lookup outlives any single caller; each caller stops waiting on its own ctx.
	ch := s.group.DoChan(normalizeAddress(address), func() (interface{}, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.geocoder.Geocode(gctx, address)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return types.Point{}, fmt.Errorf("%w: geocode %q: %v", ErrDistanceUnavailable, address, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return types.Point{}, fmt.Errorf("%w: geocode %q: %v", ErrDistanceUnavailable, address, res.Err)
	}
	p := res.Val.(types.Point)

	if s.cache != nil {
		if err := s.cache.Set(ctx, address, p); err != nil {
			s.log.WithError(err).Warn("geocode cache write failed")
		}
	}
	return p, nil
}

// Resolve measures pickup -> vias -> dropoff. The result is road distance only when
// every leg was answered by the router.
func (s *Service) Resolve(ctx context.Context, r Route) (Distance, error) {
	pickup, err := s.Locate(ctx, r.Pickup, r.PickupCoord)
	if err != nil {
		return Distance{}, err
	}
	dropoff, err := s.Locate(ctx, r.Dropoff, r.DropoffCoord)
	if err != nil {
		return Distance{}, err
	}

	stops := make([]types.Point, 0, len(r.Vias)+2)
	stops = append(stops, pickup)
	for _, via := range r.Vias {
		p, err := s.Locate(ctx, via, types.NullPoint{})
		if err != nil {
			return Distance{}, err
		}
		stops = append(stops, p)
	}
	stops = append(stops, dropoff)

	d := Distance{Method: MethodRoad, Pickup: pickup, Dropoff: dropoff}
	for i := 1; i < len(stops); i++ {
		miles, method := s.legMiles(ctx, stops[i-1], stops[i])
		d.Miles += miles
		if method == MethodGreatCircle {
			d.Method = MethodGreatCircle
		}
	}
	observability.DistanceLookupsTotal.WithLabelValues(string(d.Method)).Inc()
	return d, nil
}

func (s *Service) legMiles(ctx context.Context, from, to types.Point) (float64, Method) {
	if s.router == nil {
		return HaversineMiles(from, to), MethodGreatCircle
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	miles, err := s.router.RoadMiles(rctx, from, to)
	if err != nil {
		entry := s.log.WithError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			entry = entry.WithField("timeout", s.timeout.String())
		}
		entry.Warn("road distance failed, using great-circle")
		return HaversineMiles(from, to), MethodGreatCircle
	}
	return miles, MethodRoad
}
