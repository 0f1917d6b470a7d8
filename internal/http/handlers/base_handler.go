// README: Base handler utilities (JSON helpers, error mapping, caller checks).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/job"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the identifiers issued here (uuids) and by onboarding tooling
// (letters, digits, '-' and '_'), up to 64 characters.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module sentinels to status codes.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, job.ErrBadRequest),
		errors.Is(err, driver.ErrBadRequest),
		errors.Is(err, dispatch.ErrBadRequest),
		errors.Is(err, pricing.ErrBadRequest),
		errors.Is(err, pricing.ErrInvalidTariff),
		errors.Is(err, tenant.ErrBadRequest),
		errors.Is(err, types.ErrMalformedLocation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, job.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, dispatch.ErrNotFound),
		errors.Is(err, pricing.ErrNotFound),
		errors.Is(err, tenant.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, job.ErrInvalidState),
		errors.Is(err, job.ErrConflict),
		errors.Is(err, driver.ErrInvalidState),
		errors.Is(err, driver.ErrConflict),
		errors.Is(err, driver.ErrHasActiveJob),
		errors.Is(err, dispatch.ErrDriverUnavailable),
		errors.Is(err, dispatch.ErrJobUnavailable),
		errors.Is(err, dispatch.ErrNoCandidateDriver):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// tenantFor resolves the tenant a request acts on: the explicit one when given,
// otherwise the caller's. It writes 400/403 and returns false when unusable.
func tenantFor(c *gin.Context, explicit string) (types.ID, bool) {
	tenantID := explicit
	if tenantID == "" {
		tenantID = middleware.CallerTenant(c)
	}
	if tenantID == "" {
		writeError(c, http.StatusBadRequest, "missing tenant_id")
		return "", false
	}
	if !isValidID(tenantID) {
		writeError(c, http.StatusBadRequest, "invalid tenant_id")
		return "", false
	}
	if !middleware.CanAccessTenant(c, tenantID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return "", false
	}
	return types.ID(tenantID), true
}

// pathID reads and validates the :id path parameter.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}

// coordInRange is true for an absent pair and for a pair within WGS84 bounds.
func coordInRange(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return true
	}
	return types.Point{Lat: *lat, Lng: *lng}.InRange()
}

func money(v decimal.Decimal, currency string) string {
	return v.StringFixed(types.MinorUnits(currency))
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
