// README: Pricing service composes fixed routes, zone pairs, tariffs and surcharges into a quote.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/config"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/observability"
	"taxidispatch/internal/types"
)

type Repository interface {
	LoadCatalog(ctx context.Context, tenantID types.ID) (*Catalog, error)
	UpsertTariff(ctx context.Context, t *Tariff) error
	CreateFixedPrice(ctx context.Context, f *FixedPrice) error
	CreateZone(ctx context.Context, z *Zone) error
	CreateZonePrice(ctx context.Context, zp *ZonePrice) error
	CreateSurcharge(ctx context.Context, sc *Surcharge) error
	Delete(ctx context.Context, kind CatalogKind, tenantID, id types.ID) error
}

type Tenants interface {
	Get(ctx context.Context, id types.ID) (*tenant.Tenant, error)
}

type Distances interface {
	Resolve(ctx context.Context, r location.Route) (location.Distance, error)
	Locate(ctx context.Context, address string, known types.NullPoint) (types.Point, error)
}

type Service struct {
	store    Repository
	tenants  Tenants
	distance Distances
	cfg      config.PricingConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store Repository, tenants Tenants, distance Distances, cfg config.PricingConfig, log logrus.FieldLogger) *Service {
	if cfg.DefaultVehicleType == "" {
		cfg.DefaultVehicleType = "Saloon"
	}
	if cfg.Currency == "" {
		cfg.Currency = types.DefaultCurrency
	}
	return &Service{
		store:    store,
		tenants:  tenants,
		distance: distance,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

const (
	pathFixed    = "fixed"
	pathZone     = "zone"
	pathDistance = "distance"
	pathDegraded = "degraded"
)

// Calculate never fails. Anything that prevents a real price yields the configured
// default fare with Degraded set and the cause in Breakdown.Error.
func (s *Service) Calculate(ctx context.Context, req Request) Quote {
	vehicle := strings.TrimSpace(req.VehicleType)
	if vehicle == "" {
		vehicle = s.cfg.DefaultVehicleType
	}
	log := s.log.WithFields(logrus.Fields{"tenant_id": req.TenantID, "vehicle_type": vehicle})

	t, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return s.degraded(log, req, vehicle, s.cfg.Currency, fmt.Errorf("tenant: %w", err))
	}
	currency := t.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	cat, err := s.store.LoadCatalog(ctx, req.TenantID)
	if err != nil {
		return s.degraded(log, req, vehicle, currency, fmt.Errorf("catalog: %w", err))
	}

	b := Breakdown{
		VehicleType:     vehicle,
		IsWaitAndReturn: req.IsWaitAndReturn,
		WaitingTime:     req.WaitingTime,
		Currency:        currency,
	}
	path := pathDistance

	if fp, ok := MatchFixedPrice(cat.FixedPrices, req.Pickup, req.Dropoff, vehicle); ok {
		path = pathFixed
		b.Base = fp.Price
		b.IsFixed = true
		id := fp.ID
		b.FixedPriceID = &id
	} else if zp, label, ok := s.matchZones(ctx, log, t, cat, req, vehicle); ok {
		path = pathZone
		b.Base = zp.Price
		b.ZoneUsed = label
	} else {
		tariff, fellBack, err := ResolveTariff(cat.Tariffs, vehicle, s.cfg.DefaultVehicleType)
		if err != nil {
			return s.degraded(log, req, vehicle, currency, err)
		}
		if fellBack {
			log.WithField("fallback", tariff.VehicleType).Info("no tariff for vehicle type, using fallback")
			b.VehicleType = tariff.VehicleType
		}

		miles, method, err := s.miles(ctx, req)
		if err != nil {
			return s.degraded(log, req, vehicle, currency, err)
		}
		b.DistanceMiles = &miles
		b.DistanceMethod = method
		b.Base = tariff.Fare(miles)
	}

	b.SurchargeTotal = decimal.Zero
	if !b.IsFixed || t.SurchargeFixedPrices {
		at := req.PickupTime
		if at.IsZero() {
			at = s.now()
		}
		active := ApplicableSurcharges(cat.Surcharges, at, t.Location())
		b.SurchargeTotal, b.Surcharges = ApplySurcharges(b.Base, active)
	}

	price := types.RoundToCurrency(b.Base.Add(b.SurchargeTotal), currency)
	b.Base = types.RoundToCurrency(b.Base, currency)
	b.SurchargeTotal = types.RoundToCurrency(b.SurchargeTotal, currency)
	observability.PriceQuotesTotal.WithLabelValues(path).Inc()
	return Quote{Price: price, Breakdown: b}
}

// matchZones applies a zone-pair price when the tenant has zone pricing on and both
// ends fall inside zones with a price for that pair.
func (s *Service) matchZones(ctx context.Context, log logrus.FieldLogger, t *tenant.Tenant, cat *Catalog, req Request, vehicle string) (ZonePrice, string, bool) {
	if !t.ZonePricing || len(cat.Zones) == 0 || len(cat.ZonePrices) == 0 {
		return ZonePrice{}, "", false
	}
	pickup, err := s.distance.Locate(ctx, req.Pickup, req.PickupCoord)
	if err != nil {
		log.WithError(err).Debug("zone pricing skipped: pickup not located")
		return ZonePrice{}, "", false
	}
	dropoff, err := s.distance.Locate(ctx, req.Dropoff, req.DropoffCoord)
	if err != nil {
		log.WithError(err).Debug("zone pricing skipped: dropoff not located")
		return ZonePrice{}, "", false
	}
	from, ok := FindZone(cat.Zones, pickup)
	if !ok {
		return ZonePrice{}, "", false
	}
	to, ok := FindZone(cat.Zones, dropoff)
	if !ok {
		return ZonePrice{}, "", false
	}
	zp, ok := MatchZonePrice(cat.ZonePrices, from.ID, to.ID, vehicle)
	if !ok {
		return ZonePrice{}, "", false
	}
	return zp, from.Name + " -> " + to.Name, true
}

func (s *Service) miles(ctx context.Context, req Request) (float64, string, error) {
	if req.DistanceMiles != nil && *req.DistanceMiles > 0 {
		return *req.DistanceMiles, "client", nil
	}
	d, err := s.distance.Resolve(ctx, location.Route{
		Pickup:       req.Pickup,
		Dropoff:      req.Dropoff,
		Vias:         req.Vias,
		PickupCoord:  req.PickupCoord,
		DropoffCoord: req.DropoffCoord,
	})
	if err != nil {
		return 0, "", err
	}
	return d.Miles, string(d.Method), nil
}

func (s *Service) degraded(log logrus.FieldLogger, req Request, vehicle, currency string, cause error) Quote {
	log.WithError(cause).Warn("price degraded to default fare")
	observability.PriceDegradedTotal.Inc()
	observability.PriceQuotesTotal.WithLabelValues(pathDegraded).Inc()
	fare := types.RoundToCurrency(s.cfg.DefaultFare, currency)
	return Quote{
		Price: fare,
		Breakdown: Breakdown{
			Base:            fare,
			SurchargeTotal:  decimal.Zero,
			VehicleType:     vehicle,
			IsWaitAndReturn: req.IsWaitAndReturn,
			WaitingTime:     req.WaitingTime,
			Currency:        currency,
			Degraded:        true,
			Error:           cause.Error(),
		},
	}
}

func (s *Service) UpsertTariff(ctx context.Context, t Tariff) (*Tariff, error) {
	if t.TenantID == "" {
		return nil, ErrBadRequest
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpsertTariff(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) CreateFixedPrice(ctx context.Context, f FixedPrice) (*FixedPrice, error) {
	if f.TenantID == "" || normalizePlace(f.Pickup) == "" || normalizePlace(f.Dropoff) == "" || f.VehicleType == "" {
		return nil, ErrBadRequest
	}
	if f.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrBadRequest)
	}
	f.ID = types.NewID()
	if err := s.store.CreateFixedPrice(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Service) CreateZone(ctx context.Context, z Zone) (*Zone, error) {
	if z.TenantID == "" || z.Name == "" {
		return nil, ErrBadRequest
	}
	if len(z.Polygon) < 3 {
		return nil, fmt.Errorf("%w: polygon needs at least 3 vertices", ErrBadRequest)
	}
	for _, v := range z.Polygon {
		if !v.InRange() {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedLocation, v)
		}
	}
	z.ID = types.NewID()
	if err := s.store.CreateZone(ctx, &z); err != nil {
		return nil, err
	}
	return &z, nil
}

func (s *Service) CreateZonePrice(ctx context.Context, zp ZonePrice) (*ZonePrice, error) {
	if zp.TenantID == "" || zp.FromZoneID == "" || zp.ToZoneID == "" || zp.VehicleType == "" {
		return nil, ErrBadRequest
	}
	if zp.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrBadRequest)
	}
	zp.ID = types.NewID()
	if err := s.store.CreateZonePrice(ctx, &zp); err != nil {
		return nil, err
	}
	return &zp, nil
}

func (s *Service) CreateSurcharge(ctx context.Context, sc Surcharge) (*Surcharge, error) {
	if sc.TenantID == "" {
		return nil, ErrBadRequest
	}
	if sc.Type != SurchargePercent && sc.Type != SurchargeFlat {
		return nil, fmt.Errorf("%w: surcharge type %q", ErrBadRequest, sc.Type)
	}
	if sc.StartDate != nil && sc.EndDate != nil && dateKey(*sc.EndDate) < dateKey(*sc.StartDate) {
		return nil, fmt.Errorf("%w: end date before start date", ErrBadRequest)
	}
	for _, d := range sc.Days {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("%w: weekday %d", ErrBadRequest, d)
		}
	}
	sc.ID = types.NewID()
	if err := s.store.CreateSurcharge(ctx, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Service) Delete(ctx context.Context, kind CatalogKind, tenantID, id types.ID) error {
	if tenantID == "" || id == "" {
		return ErrBadRequest
	}
	if err := s.store.Delete(ctx, kind, tenantID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return nil
}
