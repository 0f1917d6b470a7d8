// README: Driver handlers for registration, status and location reports.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/types"
)

type DriverService interface {
	Register(ctx context.Context, cmd driver.RegisterCommand) (*driver.Driver, error)
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	ReportStatus(ctx context.Context, cmd driver.ReportStatusCommand) (*driver.Driver, error)
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type driverResp struct {
	ID                types.ID        `json:"id"`
	TenantID          types.ID        `json:"tenantId"`
	Name              string          `json:"name"`
	Status            driver.Status   `json:"status"`
	StatusVersion     int             `json:"statusVersion"`
	Location          types.NullPoint `json:"location"`
	LocationUpdatedAt *time.Time      `json:"locationUpdatedAt,omitempty"`
}

func toDriverResp(d *driver.Driver) driverResp {
	return driverResp{
		ID:                d.ID,
		TenantID:          d.TenantID,
		Name:              d.Name,
		Status:            d.Status,
		StatusVersion:     d.StatusVersion,
		Location:          d.Location,
		LocationUpdatedAt: d.LocationUpdatedAt,
	}
}

type registerDriverReq struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	Name     string   `json:"name"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	tenantID, ok := tenantFor(c, req.TenantID)
	if !ok {
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) || !coordInRange(req.Lat, req.Lng) {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	if req.ID != "" && !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		ID:       types.ID(req.ID),
		TenantID: tenantID,
		Name:     strings.TrimSpace(req.Name),
		Location: types.PointFromPtrs(req.Lat, req.Lng),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toDriverResp(d))
}

// loadDriver allows the driver themself and staff of the driver's tenant.
func (h *DriverHandler) loadDriver(c *gin.Context) (*driver.Driver, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	d, err := h.drivers.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	switch middleware.CallerRole(c) {
	case middleware.RoleDriver:
		if middleware.CallerUID(c) == string(d.ID) {
			return d, true
		}
	default:
		if middleware.CanAccessTenant(c, string(d.TenantID)) {
			return d, true
		}
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return nil, false
}

func (h *DriverHandler) Get(c *gin.Context) {
	d, ok := h.loadDriver(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, toDriverResp(d))
}

type driverStatusReq struct {
	Status          string `json:"status"`
	ExpectedVersion *int   `json:"expectedVersion"`
}

// UpdateStatus handles PUT /api/drivers/:id/status. A stale expectedVersion or a
// concurrent assignment answers 409.
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	d, ok := h.loadDriver(c)
	if !ok {
		return
	}
	var req driverStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	updated, err := h.drivers.ReportStatus(c.Request.Context(), driver.ReportStatusCommand{
		DriverID:        d.ID,
		Status:          driver.Status(strings.ToUpper(req.Status)),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDriverResp(updated))
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UpdateLocation handles PUT /api/drivers/:id/location.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	d, ok := h.loadDriver(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "missing lat or lng")
		return
	}
	p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.drivers.UpdateLocation(c.Request.Context(), d.ID, p); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driverId": d.ID, "location": p})
}
