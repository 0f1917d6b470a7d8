// README: Fare quote handler.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/types"
)

type PricingService interface {
	Calculate(ctx context.Context, req pricing.Request) pricing.Quote
	UpsertTariff(ctx context.Context, t pricing.Tariff) (*pricing.Tariff, error)
	CreateFixedPrice(ctx context.Context, f pricing.FixedPrice) (*pricing.FixedPrice, error)
	CreateZone(ctx context.Context, z pricing.Zone) (*pricing.Zone, error)
	CreateZonePrice(ctx context.Context, zp pricing.ZonePrice) (*pricing.ZonePrice, error)
	CreateSurcharge(ctx context.Context, sc pricing.Surcharge) (*pricing.Surcharge, error)
	Delete(ctx context.Context, kind pricing.CatalogKind, tenantID, id types.ID) error
}

type PricingHandler struct {
	pricing PricingService
}

func NewPricingHandler(svc PricingService) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

// tripReq is the shared shape of quote and booking requests.
type tripReq struct {
	TenantID        string   `json:"tenantId"`
	Pickup          string   `json:"pickup"`
	Dropoff         string   `json:"dropoff"`
	Vias            []string `json:"vias"`
	DistanceMiles   *float64 `json:"distanceMiles"`
	PickupTime      string   `json:"pickupTime"`
	VehicleType     string   `json:"vehicleType"`
	IsWaitAndReturn bool     `json:"isWaitAndReturn"`
	WaitingMinutes  int      `json:"waitingTime"`
	PickupLat       *float64 `json:"pickupLat"`
	PickupLng       *float64 `json:"pickupLng"`
	DropoffLat      *float64 `json:"dropoffLat"`
	DropoffLng      *float64 `json:"dropoffLng"`
}

// validate trims fields and parses the pickup time. An empty pickup time means now.
func (r *tripReq) validate(now time.Time) (time.Time, string) {
	r.Pickup = strings.TrimSpace(r.Pickup)
	r.Dropoff = strings.TrimSpace(r.Dropoff)
	if r.Pickup == "" || r.Dropoff == "" {
		return time.Time{}, "missing pickup or dropoff"
	}
	if r.WaitingMinutes < 0 {
		return time.Time{}, "waitingTime must not be negative"
	}
	if r.DistanceMiles != nil && *r.DistanceMiles < 0 {
		return time.Time{}, "distanceMiles must not be negative"
	}
	if (r.PickupLat == nil) != (r.PickupLng == nil) || (r.DropoffLat == nil) != (r.DropoffLng == nil) {
		return time.Time{}, "coordinates need both lat and lng"
	}
	if !coordInRange(r.PickupLat, r.PickupLng) || !coordInRange(r.DropoffLat, r.DropoffLng) {
		return time.Time{}, "coordinates out of range"
	}
	if r.PickupTime == "" {
		return now, ""
	}
	at, err := time.Parse(time.RFC3339, r.PickupTime)
	if err != nil {
		return time.Time{}, "pickupTime must be RFC3339"
	}
	return at, ""
}

type surchargeResp struct {
	ID     types.ID `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Value  string   `json:"value"`
	Amount string   `json:"amount"`
}

type breakdownResp struct {
	Base            string          `json:"base"`
	IsFixed         bool            `json:"isFixed"`
	FixedPriceID    *types.ID       `json:"fixedPriceId,omitempty"`
	Surcharges      []surchargeResp `json:"surcharges"`
	SurchargeTotal  string          `json:"surchargeTotal"`
	ZoneUsed        string          `json:"zoneUsed,omitempty"`
	DistanceMiles   *float64        `json:"distanceMiles,omitempty"`
	DistanceMethod  string          `json:"distanceMethod,omitempty"`
	VehicleType     string          `json:"vehicleType"`
	IsWaitAndReturn bool            `json:"isWaitAndReturn"`
	WaitingTime     int             `json:"waitingTime,omitempty"`
	Currency        string          `json:"currency"`
	Degraded        bool            `json:"degraded"`
	Error           string          `json:"error,omitempty"`
}

type quoteResp struct {
	Price     string        `json:"price"`
	Breakdown breakdownResp `json:"breakdown"`
}

func toQuoteResp(q pricing.Quote) quoteResp {
	b := q.Breakdown
	out := breakdownResp{
		Base:            money(b.Base, b.Currency),
		IsFixed:         b.IsFixed,
		FixedPriceID:    b.FixedPriceID,
		Surcharges:      make([]surchargeResp, 0, len(b.Surcharges)),
		SurchargeTotal:  money(b.SurchargeTotal, b.Currency),
		ZoneUsed:        b.ZoneUsed,
		DistanceMiles:   b.DistanceMiles,
		DistanceMethod:  b.DistanceMethod,
		VehicleType:     b.VehicleType,
		IsWaitAndReturn: b.IsWaitAndReturn,
		WaitingTime:     int(b.WaitingTime / time.Minute),
		Currency:        b.Currency,
		Degraded:        b.Degraded,
		Error:           b.Error,
	}
	for _, s := range b.Surcharges {
		out.Surcharges = append(out.Surcharges, surchargeResp{
			ID:     s.ID,
			Name:   s.Name,
			Type:   string(s.Type),
			Value:  s.Value.String(),
			Amount: money(s.Amount, b.Currency),
		})
	}
	return quoteResp{Price: money(q.Price, b.Currency), Breakdown: out}
}

// Quote handles POST /api/pricing/quote. Pricing never fails the request; a
// degraded quote carries breakdown.error.
func (h *PricingHandler) Quote(c *gin.Context) {
	var req tripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	tenantID, ok := tenantFor(c, req.TenantID)
	if !ok {
		return
	}
	at, msg := req.validate(time.Now())
	if msg != "" {
		writeError(c, http.StatusBadRequest, msg)
		return
	}

	q := h.pricing.Calculate(c.Request.Context(), pricing.Request{
		TenantID:        tenantID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Vias:            req.Vias,
		DistanceMiles:   req.DistanceMiles,
		PickupTime:      at,
		VehicleType:     req.VehicleType,
		IsWaitAndReturn: req.IsWaitAndReturn,
		WaitingTime:     time.Duration(req.WaitingMinutes) * time.Minute,
		PickupCoord:     types.PointFromPtrs(req.PickupLat, req.PickupLng),
		DropoffCoord:    types.PointFromPtrs(req.DropoffLat, req.DropoffLng),
	})
	writeJSON(c, http.StatusOK, toQuoteResp(q))
}
