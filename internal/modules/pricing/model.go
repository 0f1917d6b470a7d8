// README: Tariffs, fixed routes, zones and surcharges that make up a tenant's price catalog.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"taxidispatch/internal/types"
)

var (
	ErrInvalidTariff = errors.New("invalid tariff")
	ErrNotFound      = errors.New("pricing record not found")
	ErrBadRequest    = errors.New("bad request")
)

type Tariff struct {
	TenantID    types.ID
	VehicleType string
	BaseRate    decimal.Decimal
	PerMile     decimal.Decimal
	MinFare     decimal.Decimal
	UpdatedAt   time.Time
}

type FixedPrice struct {
	ID          types.ID
	TenantID    types.ID
	Name        string
	Pickup      string
	Dropoff     string
	VehicleType string
	Price       decimal.Decimal
	IsReverse   bool
}

// Zone polygons are open rings of lat/lng vertices.
type Zone struct {
	ID        types.ID
	TenantID  types.ID
	Name      string
	Color     string
	Polygon   []types.Point
	CreatedAt time.Time
}

type ZonePrice struct {
	ID          types.ID
	TenantID    types.ID
	FromZoneID  types.ID
	ToZoneID    types.ID
	VehicleType string
	Price       decimal.Decimal
	IsReverse   bool
}

type SurchargeType string

const (
	SurchargePercent SurchargeType = "PERCENT"
	SurchargeFlat    SurchargeType = "FLAT"
)

// ClockTime is a wall-clock time of day in minutes after midnight.
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: time of day %q", ErrBadRequest, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: time of day %q", ErrBadRequest, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time of day %q", ErrBadRequest, s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Surcharge dimensions left nil (or Days empty) always match.
type Surcharge struct {
	ID        types.ID
	TenantID  types.ID
	Name      string
	Type      SurchargeType
	Value     decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
	StartTime *ClockTime
	EndTime   *ClockTime
	Days      []time.Weekday
}

// Catalog is everything pricing needs to know about one tenant.
type Catalog struct {
	Tariffs     []Tariff
	FixedPrices []FixedPrice
	Zones       []Zone
	ZonePrices  []ZonePrice
	Surcharges  []Surcharge
}

type Request struct {
	TenantID        types.ID
	Pickup          string
	Dropoff         string
	Vias            []string
	DistanceMiles   *float64
	PickupTime      time.Time
	VehicleType     string
	IsWaitAndReturn bool
	WaitingTime     time.Duration
	PickupCoord     types.NullPoint
	DropoffCoord    types.NullPoint
}

type AppliedSurcharge struct {
	ID     types.ID
	Name   string
	Type   SurchargeType
	Value  decimal.Decimal
	Amount decimal.Decimal
}

type Breakdown struct {
	Base            decimal.Decimal
	IsFixed         bool
	FixedPriceID    *types.ID
	Surcharges      []AppliedSurcharge
	SurchargeTotal  decimal.Decimal
	ZoneUsed        string
	DistanceMiles   *float64
	DistanceMethod  string
	VehicleType     string
	IsWaitAndReturn bool
	WaitingTime     time.Duration
	Currency        string
	Degraded        bool
	Error           string
}

type Quote struct {
	Price     decimal.Decimal
	Breakdown Breakdown
}
