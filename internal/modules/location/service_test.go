package location

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"taxidispatch/internal/logging"
	"taxidispatch/internal/types"
)

type fakeGeocoder struct {
	points map[string]types.Point
	calls  atomic.Int32
	delay  time.Duration
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (types.Point, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.Point{}, ctx.Err()
		}
	}
	p, ok := f.points[address]
	if !ok {
		return types.Point{}, errors.New("no result")
	}
	return p, nil
}

type fakeRouter struct {
	miles float64
	err   error
	calls int
}

func (f *fakeRouter) RoadMiles(ctx context.Context, from, to types.Point) (float64, error) {
	f.calls++
	return f.miles, f.err
}

type memCache struct {
	mu sync.Mutex
	m  map[string]types.Point
}

func (c *memCache) Get(ctx context.Context, address string) (types.Point, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[normalizeAddress(address)]
	return p, ok, nil
}

func (c *memCache) Set(ctx context.Context, address string, p types.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]types.Point{}
	}
	c.m[normalizeAddress(address)] = p
	return nil
}

var (
	kingsCross = types.Point{Lat: 51.5308, Lng: -0.1238}
	heathrow   = types.Point{Lat: 51.4700, Lng: -0.4543}
	wembley    = types.Point{Lat: 51.5560, Lng: -0.2796}
)

func TestResolve_UsesRoadDistance(t *testing.T) {
	router := &fakeRouter{miles: 17.5}
	svc := NewService(nil, router, nil, time.Second, logging.Discard())

	d, err := svc.Resolve(context.Background(), Route{
		PickupCoord:  types.NullPoint{Point: kingsCross, Valid: true},
		DropoffCoord: types.NullPoint{Point: heathrow, Valid: true},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if d.Method != MethodRoad || d.Miles != 17.5 {
		t.Errorf("Resolve() = %+v, want road 17.5", d)
	}
}

func TestResolve_FallsBackToGreatCircle(t *testing.T) {
	router := &fakeRouter{err: errors.New("quota exceeded")}
	svc := NewService(nil, router, nil, time.Second, logging.Discard())

	d, err := svc.Resolve(context.Background(), Route{
		PickupCoord:  types.NullPoint{Point: kingsCross, Valid: true},
		DropoffCoord: types.NullPoint{Point: heathrow, Valid: true},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if d.Method != MethodGreatCircle {
		t.Errorf("Method = %s, want great_circle", d.Method)
	}
	if want := HaversineMiles(kingsCross, heathrow); d.Miles != want {
		t.Errorf("Miles = %f, want %f", d.Miles, want)
	}
}

func TestResolve_SumsViaLegs(t *testing.T) {
	geo := &fakeGeocoder{points: map[string]types.Point{
		"Kings Cross":     kingsCross,
		"Wembley Stadium": wembley,
		"Heathrow T5":     heathrow,
	}}
	router := &fakeRouter{miles: 4}
	svc := NewService(geo, router, nil, time.Second, logging.Discard())

	d, err := svc.Resolve(context.Background(), Route{
		Pickup:  "Kings Cross",
		Vias:    []string{"Wembley Stadium"},
		Dropoff: "Heathrow T5",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if router.calls != 2 || d.Miles != 8 {
		t.Errorf("legs = %d miles = %f, want 2 legs and 8 miles", router.calls, d.Miles)
	}
	if d.Pickup != kingsCross || d.Dropoff != heathrow {
		t.Errorf("resolved ends = %v -> %v", d.Pickup, d.Dropoff)
	}
}

func TestResolve_UnknownAddress(t *testing.T) {
	geo := &fakeGeocoder{points: map[string]types.Point{}}
	svc := NewService(geo, nil, nil, time.Second, logging.Discard())

	_, err := svc.Resolve(context.Background(), Route{
		Pickup:       "Nowhere Lane",
		DropoffCoord: types.NullPoint{Point: heathrow, Valid: true},
	})
	if !errors.Is(err, ErrDistanceUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrDistanceUnavailable", err)
	}
}

func TestResolve_NoGeocoder(t *testing.T) {
	svc := NewService(nil, nil, nil, time.Second, logging.Discard())
	_, err := svc.Resolve(context.Background(), Route{Pickup: "Kings Cross", Dropoff: "Heathrow"})
	if !errors.Is(err, ErrDistanceUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrDistanceUnavailable", err)
	}
}

func TestLocate_GeocodeTimeout(t *testing.T) {
	geo := &fakeGeocoder{points: map[string]types.Point{"Kings Cross": kingsCross}, delay: time.Second}
	svc := NewService(geo, nil, nil, 20*time.Millisecond, logging.Discard())

	_, err := svc.Locate(context.Background(), "Kings Cross", types.NullPoint{})
	if !errors.Is(err, ErrDistanceUnavailable) {
		t.Fatalf("Locate() error = %v, want ErrDistanceUnavailable", err)
	}
}

func TestLocate_SharedLookupSurvivesCancelledCaller(t *testing.T) {
	geo := &fakeGeocoder{points: map[string]types.Point{"Kings Cross": kingsCross}, delay: 200 * time.Millisecond}
	svc := NewService(geo, nil, nil, time.Second, logging.Discard())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Locate(ctxA, "Kings Cross", types.NullPoint{})
		errA <- err
	}()
	for geo.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		p   types.Point
		err error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := svc.Locate(context.Background(), "Kings Cross", types.NullPoint{})
		resB <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	if err := <-errA; !errors.Is(err, ErrDistanceUnavailable) {
		t.Errorf("cancelled caller error = %v, want ErrDistanceUnavailable", err)
	}
	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller error = %v", b.err)
	}
	if b.p != kingsCross {
		t.Errorf("live caller point = %v, want %v", b.p, kingsCross)
	}
	if n := geo.calls.Load(); n != 1 {
		t.Errorf("geocoder calls = %d, want 1", n)
	}
}

func TestLocate_UsesCache(t *testing.T) {
	geo := &fakeGeocoder{points: map[string]types.Point{"Kings Cross": kingsCross}}
	cache := &memCache{}
	svc := NewService(geo, nil, cache, time.Second, logging.Discard())
	ctx := context.Background()

	for _, addr := range []string{"Kings Cross", "  kings   CROSS "} {
		p, err := svc.Locate(ctx, addr, types.NullPoint{})
		if err != nil {
			t.Fatalf("Locate(%q) error = %v", addr, err)
		}
		if p != kingsCross {
			t.Errorf("Locate(%q) = %v", addr, p)
		}
	}
	if n := geo.calls.Load(); n != 1 {
		t.Errorf("geocoder calls = %d, want 1", n)
	}
}

func TestRedisGeocodeCache(t *testing.T) {
	addr := os.Getenv("TD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TD_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	cache := NewRedisGeocodeCache(rdb, time.Minute)
	address := "Test Address " + time.Now().Format(time.RFC3339Nano)
	defer rdb.Del(ctx, geocodeKey(address))

	if _, ok, err := cache.Get(ctx, address); err != nil || ok {
		t.Fatalf("Get() before Set = %v, %v", ok, err)
	}
	if err := cache.Set(ctx, address, kingsCross); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	p, ok, err := cache.Get(ctx, address)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if p.Lat != kingsCross.Lat || p.Lng != kingsCross.Lng {
		t.Errorf("Get() = %v, want %v", p, kingsCross)
	}
}
