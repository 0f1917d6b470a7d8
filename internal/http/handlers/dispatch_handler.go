// README: Manual dispatch trigger.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/types"
)

type DispatchRunner interface {
	RunTenant(ctx context.Context, tenantID types.ID) (dispatch.Report, error)
	RunAll(ctx context.Context) (dispatch.Summary, error)
}

type DispatchHandler struct {
	dispatch DispatchRunner
}

func NewDispatchHandler(svc DispatchRunner) *DispatchHandler {
	return &DispatchHandler{dispatch: svc}
}

// Run handles POST /api/dispatch/run. With tenantId (or a tenant-scoped caller) it
// runs that tenant; an admin without tenantId runs every auto-dispatch tenant.
// Per-job failures are counts in the summary, not errors.
func (h *DispatchHandler) Run(c *gin.Context) {
	explicit := c.Query("tenantId")
	if explicit == "" && middleware.CallerTenant(c) == "" && middleware.CallerRole(c) == middleware.RoleAdmin {
		sum, err := h.dispatch.RunAll(c.Request.Context())
		if err != nil && len(sum.Tenants) == 0 {
			writeServiceError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, sum)
		return
	}

	tenantID, ok := tenantFor(c, explicit)
	if !ok {
		return
	}
	rep, err := h.dispatch.RunTenant(c.Request.Context(), tenantID)
	if err != nil && rep.Assigned == 0 && rep.Failed == 0 {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dispatch.Summary{
		Assigned: rep.Assigned,
		Failed:   rep.Failed,
		Tenants:  []dispatch.Report{rep},
	})
}
