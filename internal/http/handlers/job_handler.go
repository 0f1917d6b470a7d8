// README: Job handlers for booking, lookup, status changes and manual dispatch.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/job"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

type JobService interface {
	Create(ctx context.Context, cmd job.CreateCommand) (*job.CreateResult, error)
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	List(ctx context.Context, f job.ListFilter) ([]job.Job, error)
	Events(ctx context.Context, id types.ID) ([]job.Event, error)
	Advance(ctx context.Context, cmd job.AdvanceCommand) error
	Cancel(ctx context.Context, cmd job.CancelCommand) error
	Unassign(ctx context.Context, cmd job.UnassignCommand) error
}

type Assigner interface {
	Assign(ctx context.Context, cmd dispatch.AssignCommand) (*dispatch.Assignment, error)
}

type TenantLookup interface {
	Get(ctx context.Context, id types.ID) (*tenant.Tenant, error)
}

type JobHandler struct {
	jobs     JobService
	dispatch Assigner
	tenants  TenantLookup
}

func NewJobHandler(jobs JobService, dispatch Assigner, tenants TenantLookup) *JobHandler {
	return &JobHandler{jobs: jobs, dispatch: dispatch, tenants: tenants}
}

// currency is the tenant's billing currency, or the default when the tenant
// cannot be read.
func (h *JobHandler) currency(ctx context.Context, tenantID types.ID) string {
	if h.tenants != nil {
		if t, err := h.tenants.Get(ctx, tenantID); err == nil && t.Currency != "" {
			return t.Currency
		}
	}
	return types.DefaultCurrency
}

type createJobReq struct {
	tripReq
	PreAssignedDriverID string `json:"preAssignedDriverId"`
	PassengerName       string `json:"passengerName"`
	PassengerPhone      string `json:"passengerPhone"`
	Notes               string `json:"notes"`
}

type jobResp struct {
	ID                  types.ID        `json:"id"`
	TenantID            types.ID        `json:"tenantId"`
	Pickup              string          `json:"pickup"`
	Dropoff             string          `json:"dropoff"`
	Vias                []string        `json:"vias"`
	PickupCoord         types.NullPoint `json:"pickupCoord"`
	DropoffCoord        types.NullPoint `json:"dropoffCoord"`
	VehicleType         string          `json:"vehicleType"`
	PickupTime          time.Time       `json:"pickupTime"`
	Fare                string          `json:"fare"`
	IsFixedPrice        bool            `json:"isFixedPrice"`
	IsWaitAndReturn     bool            `json:"isWaitAndReturn"`
	WaitingTime         int             `json:"waitingTime"`
	ReturnJobID         *types.ID       `json:"returnJobId,omitempty"`
	Status              job.Status      `json:"status"`
	DriverID            *types.ID       `json:"driverId,omitempty"`
	PreAssignedDriverID *types.ID       `json:"preAssignedDriverId,omitempty"`
	PassengerName       string          `json:"passengerName,omitempty"`
	PassengerPhone      string          `json:"passengerPhone,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	DispatchedAt        *time.Time      `json:"dispatchedAt,omitempty"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	CancelledAt         *time.Time      `json:"cancelledAt,omitempty"`
	CancelReason        *string         `json:"cancelReason,omitempty"`
}

func toJobResp(j *job.Job, currency string) jobResp {
	vias := j.Vias
	if vias == nil {
		vias = []string{}
	}
	return jobResp{
		ID:                  j.ID,
		TenantID:            j.TenantID,
		Pickup:              j.Pickup,
		Dropoff:             j.Dropoff,
		Vias:                vias,
		PickupCoord:         j.PickupCoord,
		DropoffCoord:        j.DropoffCoord,
		VehicleType:         j.VehicleType,
		PickupTime:          j.PickupTime,
		Fare:                money(j.Fare, currency),
		IsFixedPrice:        j.IsFixedPrice,
		IsWaitAndReturn:     j.IsWaitAndReturn,
		WaitingTime:         int(j.WaitingTime / time.Minute),
		ReturnJobID:         j.ReturnJobID,
		Status:              j.Status,
		DriverID:            j.DriverID,
		PreAssignedDriverID: j.PreAssignedDriverID,
		PassengerName:       j.PassengerName,
		PassengerPhone:      j.PassengerPhone,
		Notes:               j.Notes,
		CreatedAt:           j.CreatedAt,
		DispatchedAt:        j.DispatchedAt,
		CompletedAt:         j.CompletedAt,
		CancelledAt:         j.CancelledAt,
		CancelReason:        j.CancelReason,
	}
}

// Create handles POST /api/jobs. The job is persisted even when its quote is degraded.
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobReq
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
	var preAssigned *types.ID
	if req.PreAssignedDriverID != "" {
		if !isValidID(req.PreAssignedDriverID) {
			writeError(c, http.StatusBadRequest, "invalid preAssignedDriverId")
			return
		}
		preAssigned = types.IDPtr(types.ID(req.PreAssignedDriverID))
	}

	res, err := h.jobs.Create(c.Request.Context(), job.CreateCommand{
		TenantID:            tenantID,
		Pickup:              req.Pickup,
		Dropoff:             req.Dropoff,
		Vias:                req.Vias,
		PickupCoord:         types.PointFromPtrs(req.PickupLat, req.PickupLng),
		DropoffCoord:        types.PointFromPtrs(req.DropoffLat, req.DropoffLng),
		DistanceMiles:       req.DistanceMiles,
		VehicleType:         req.VehicleType,
		PickupTime:          at,
		IsWaitAndReturn:     req.IsWaitAndReturn,
		WaitingTime:         time.Duration(req.WaitingMinutes) * time.Minute,
		PreAssignedDriverID: preAssigned,
		PassengerName:       req.PassengerName,
		PassengerPhone:      req.PassengerPhone,
		Notes:               req.Notes,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	cur := res.Quote.Breakdown.Currency
	if cur == "" {
		cur = h.currency(c.Request.Context(), tenantID)
	}
	out := gin.H{"job": toJobResp(res.Job, cur), "quote": toQuoteResp(res.Quote)}
	if res.Return != nil {
		out["returnJob"] = toJobResp(res.Return, cur)
		out["returnQuote"] = toQuoteResp(*res.ReturnQuote)
	}
	writeJSON(c, http.StatusCreated, out)
}

// List handles GET /api/jobs?tenantId=&status=&from=&to=&limit=.
func (h *JobHandler) List(c *gin.Context) {
	tenantID, ok := tenantFor(c, c.Query("tenantId"))
	if !ok {
		return
	}
	from, err := parseTimeParam(c.Query("from"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(c.Query("to"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "to must be RFC3339")
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	jobs, err := h.jobs.List(c.Request.Context(), job.ListFilter{
		TenantID: tenantID,
		Status:   job.Status(c.Query("status")),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	cur := h.currency(c.Request.Context(), tenantID)
	out := make([]jobResp, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResp(&jobs[i], cur))
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": out})
}

// loadJob fetches :id and checks that the caller is the tenant's staff or the
// job's driver.
func (h *JobHandler) loadJob(c *gin.Context) (*job.Job, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if middleware.CanAccessTenant(c, string(j.TenantID)) && middleware.CallerRole(c) != middleware.RoleDriver {
		return j, true
	}
	if middleware.CallerRole(c) == middleware.RoleDriver && j.DriverID != nil && string(*j.DriverID) == middleware.CallerUID(c) {
		return j, true
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return nil, false
}

func (h *JobHandler) Get(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, toJobResp(j, h.currency(c.Request.Context(), j.TenantID)))
}

type eventResp struct {
	From      job.Status `json:"from"`
	To        job.Status `json:"to"`
	ActorType string     `json:"actorType"`
	ActorID   *types.ID  `json:"actorId,omitempty"`
	DriverID  *types.ID  `json:"driverId,omitempty"`
	At        time.Time  `json:"at"`
}

func (h *JobHandler) Events(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	events, err := h.jobs.Events(c.Request.Context(), j.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]eventResp, 0, len(events))
	for _, e := range events {
		out = append(out, eventResp{From: e.FromStatus, To: e.ToStatus, ActorType: e.ActorType, ActorID: e.ActorID, DriverID: e.DriverID, At: e.CreatedAt})
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

type statusReq struct {
	Status string `json:"status"`
}

// UpdateStatus handles POST /api/jobs/:id/status for EN_ROUTE, ARRIVED, POB and COMPLETED.
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	err := h.jobs.Advance(c.Request.Context(), job.AdvanceCommand{
		JobID:     j.ID,
		To:        job.Status(req.Status),
		ActorType: actorType(c),
		ActorID:   types.IDPtr(types.ID(middleware.CallerUID(c))),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": req.Status})
}

type cancelReq struct {
	NoShow bool   `json:"noShow"`
	Reason string `json:"reason"`
}

func (h *JobHandler) Cancel(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	err := h.jobs.Cancel(c.Request.Context(), job.CancelCommand{
		JobID:     j.ID,
		NoShow:    req.NoShow,
		ActorType: actorType(c),
		ActorID:   types.IDPtr(types.ID(middleware.CallerUID(c))),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	status := job.StatusCancelled
	if req.NoShow {
		status = job.StatusNoShow
	}
	writeJSON(c, http.StatusOK, gin.H{"status": status})
}

type assignReq struct {
	DriverID string `json:"driverId"`
}

// Assign handles POST /api/jobs/:id/assign through the dispatcher's assignment transaction.
func (h *JobHandler) Assign(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "missing or invalid driverId")
		return
	}
	a, err := h.dispatch.Assign(c.Request.Context(), dispatch.AssignCommand{
		JobID:     j.ID,
		DriverID:  types.ID(req.DriverID),
		ActorType: actorType(c),
		ActorID:   types.IDPtr(types.ID(middleware.CallerUID(c))),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": job.StatusDispatched, "assignment": a})
}

type unassignReq struct {
	Reason string `json:"reason"`
}

func (h *JobHandler) Unassign(c *gin.Context) {
	j, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req unassignReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	err := h.jobs.Unassign(c.Request.Context(), job.UnassignCommand{
		JobID:     j.ID,
		ActorType: actorType(c),
		ActorID:   types.IDPtr(types.ID(middleware.CallerUID(c))),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": job.StatusUnassigned})
}

func actorType(c *gin.Context) string {
	if role := middleware.CallerRole(c); role != "" {
		return role
	}
	return "user"
}
