// README: Tenant settings and price catalog maintenance.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

type TenantService interface {
	Get(ctx context.Context, id types.ID) (*tenant.Tenant, error)
	UpdateSettings(ctx context.Context, cmd tenant.SettingsCommand) (*tenant.Tenant, error)
}

type TenantHandler struct {
	tenants TenantService
	pricing PricingService
}

func NewTenantHandler(tenants TenantService, pricing PricingService) *TenantHandler {
	return &TenantHandler{tenants: tenants, pricing: pricing}
}

type tenantResp struct {
	ID                   types.ID        `json:"id"`
	Name                 string          `json:"name"`
	Home                 types.NullPoint `json:"home"`
	AutoDispatch         bool            `json:"autoDispatch"`
	ZonePricing          bool            `json:"zonePricing"`
	Currency             string          `json:"currency"`
	Timezone             string          `json:"timezone"`
	SurchargeFixedPrices bool            `json:"surchargeFixedPrices"`
}

func toTenantResp(t *tenant.Tenant) tenantResp {
	return tenantResp{
		ID:                   t.ID,
		Name:                 t.Name,
		Home:                 t.Home,
		AutoDispatch:         t.AutoDispatch,
		ZonePricing:          t.ZonePricing,
		Currency:             t.Currency,
		Timezone:             t.Timezone,
		SurchargeFixedPrices: t.SurchargeFixedPrices,
	}
}

func (h *TenantHandler) Get(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	t, err := h.tenants.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTenantResp(t))
}

type settingsReq struct {
	Name                 *string          `json:"name"`
	Home                 *types.NullPoint `json:"home"`
	AutoDispatch         *bool            `json:"autoDispatch"`
	ZonePricing          *bool            `json:"zonePricing"`
	Currency             *string          `json:"currency"`
	Timezone             *string          `json:"timezone"`
	SurchargeFixedPrices *bool            `json:"surchargeFixedPrices"`
}

// UpdateSettings handles PATCH /api/tenants/:id; absent fields are left unchanged.
func (h *TenantHandler) UpdateSettings(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	var req settingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Currency != nil {
		upper := strings.ToUpper(*req.Currency)
		req.Currency = &upper
	}
	t, err := h.tenants.UpdateSettings(c.Request.Context(), tenant.SettingsCommand{
		TenantID:             tenantID,
		Name:                 req.Name,
		Home:                 req.Home,
		AutoDispatch:         req.AutoDispatch,
		ZonePricing:          req.ZonePricing,
		Currency:             req.Currency,
		Timezone:             req.Timezone,
		SurchargeFixedPrices: req.SurchargeFixedPrices,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTenantResp(t))
}

type tariffReq struct {
	BaseRate decimal.Decimal `json:"baseRate"`
	PerMile  decimal.Decimal `json:"perMile"`
	MinFare  decimal.Decimal `json:"minFare"`
}

// UpsertTariff handles PUT /api/tenants/:id/tariffs/:vehicle.
func (h *TenantHandler) UpsertTariff(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	vehicle := strings.TrimSpace(c.Param("vehicle"))
	if vehicle == "" {
		writeError(c, http.StatusBadRequest, "missing vehicle type")
		return
	}
	var req tariffReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.pricing.UpsertTariff(c.Request.Context(), pricing.Tariff{
		TenantID:    tenantID,
		VehicleType: vehicle,
		BaseRate:    req.BaseRate,
		PerMile:     req.PerMile,
		MinFare:     req.MinFare,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"tenantId":    t.TenantID,
		"vehicleType": t.VehicleType,
		"baseRate":    t.BaseRate.String(),
		"perMile":     t.PerMile.String(),
		"minFare":     t.MinFare.String(),
		"updatedAt":   t.UpdatedAt,
	})
}

type fixedPriceReq struct {
	Name        string          `json:"name"`
	Pickup      string          `json:"pickup"`
	Dropoff     string          `json:"dropoff"`
	VehicleType string          `json:"vehicleType"`
	Price       decimal.Decimal `json:"price"`
	IsReverse   bool            `json:"isReverse"`
}

func (h *TenantHandler) CreateFixedPrice(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	var req fixedPriceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	f, err := h.pricing.CreateFixedPrice(c.Request.Context(), pricing.FixedPrice{
		TenantID:    tenantID,
		Name:        req.Name,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		VehicleType: req.VehicleType,
		Price:       req.Price,
		IsReverse:   req.IsReverse,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"id": f.ID})
}

// zoneReq takes the boundary either as points or as a GeoJSON Polygon geometry.
type zoneReq struct {
	Name    string          `json:"name"`
	Color   string          `json:"color"`
	Polygon []types.Point   `json:"polygon"`
	GeoJSON json.RawMessage `json:"geojson"`
}

func (h *TenantHandler) CreateZone(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	var req zoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	poly := req.Polygon
	if len(req.GeoJSON) > 0 {
		decoded, err := pricing.DecodePolygon(string(req.GeoJSON))
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid geojson polygon")
			return
		}
		poly = decoded
	}
	z, err := h.pricing.CreateZone(c.Request.Context(), pricing.Zone{
		TenantID: tenantID,
		Name:     strings.TrimSpace(req.Name),
		Color:    req.Color,
		Polygon:  poly,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"id": z.ID})
}

type zonePriceReq struct {
	FromZoneID  string          `json:"fromZoneId"`
	ToZoneID    string          `json:"toZoneId"`
	VehicleType string          `json:"vehicleType"`
	Price       decimal.Decimal `json:"price"`
	IsReverse   bool            `json:"isReverse"`
}

func (h *TenantHandler) CreateZonePrice(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	var req zonePriceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	zp, err := h.pricing.CreateZonePrice(c.Request.Context(), pricing.ZonePrice{
		TenantID:    tenantID,
		FromZoneID:  types.ID(req.FromZoneID),
		ToZoneID:    types.ID(req.ToZoneID),
		VehicleType: req.VehicleType,
		Price:       req.Price,
		IsReverse:   req.IsReverse,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"id": zp.ID})
}

type surchargeReq struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	StartTime string          `json:"startTime"`
	EndTime   string          `json:"endTime"`
	// Days are 0 (Sunday) to 6 (Saturday).
	Days []int `json:"days"`
}

func (r surchargeReq) toSurcharge(tenantID types.ID) (pricing.Surcharge, string) {
	sc := pricing.Surcharge{
		TenantID: tenantID,
		Name:     r.Name,
		Type:     pricing.SurchargeType(strings.ToUpper(r.Type)),
		Value:    r.Value,
	}
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{{r.StartDate, &sc.StartDate}, {r.EndDate, &sc.EndDate}} {
		if d.raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.raw)
		if err != nil {
			return sc, "dates must be YYYY-MM-DD"
		}
		*d.dst = &t
	}
	for _, ct := range []struct {
		raw string
		dst **pricing.ClockTime
	}{{r.StartTime, &sc.StartTime}, {r.EndTime, &sc.EndTime}} {
		if ct.raw == "" {
			continue
		}
		v, err := pricing.ParseClockTime(ct.raw)
		if err != nil {
			return sc, "times must be HH:MM"
		}
		*ct.dst = &v
	}
	for _, d := range r.Days {
		sc.Days = append(sc.Days, time.Weekday(d))
	}
	return sc, ""
}

func (h *TenantHandler) CreateSurcharge(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Param("id"))
	if !ok {
		return
	}
	var req surchargeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sc, msg := req.toSurcharge(tenantID)
	if msg != "" {
		writeError(c, http.StatusBadRequest, msg)
		return
	}
	created, err := h.pricing.CreateSurcharge(c.Request.Context(), sc)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"id": created.ID})
}

// DeleteCatalogItem returns a handler for DELETE /api/tenants/:id/<kind>/:itemId.
func (h *TenantHandler) DeleteCatalogItem(kind pricing.CatalogKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tenantFor(c, c.Param("id"))
		if !ok {
			return
		}
		itemID, ok := pathID(c, "itemId")
		if !ok {
			return
		}
		if err := h.pricing.Delete(c.Request.Context(), kind, tenantID, itemID); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
