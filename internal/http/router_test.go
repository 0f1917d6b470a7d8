// README: Router tests: auth, tenant scoping and error mapping over stub services.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	httptransport "taxidispatch/internal/http"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/logging"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/job"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	id  *infra.Identity
	err error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.Identity, error) {
	return s.id, s.err
}

type stubPricing struct {
	quote    pricing.Quote
	lastReq  pricing.Request
	tariffEr error
	deleteEr error
}

func (s *stubPricing) Calculate(ctx context.Context, req pricing.Request) pricing.Quote {
	s.lastReq = req
	return s.quote
}

func (s *stubPricing) UpsertTariff(ctx context.Context, t pricing.Tariff) (*pricing.Tariff, error) {
	if s.tariffEr != nil {
		return nil, s.tariffEr
	}
	return &t, nil
}

func (s *stubPricing) CreateFixedPrice(ctx context.Context, f pricing.FixedPrice) (*pricing.FixedPrice, error) {
	f.ID = "fp1"
	return &f, nil
}

func (s *stubPricing) CreateZone(ctx context.Context, z pricing.Zone) (*pricing.Zone, error) {
	if len(z.Polygon) < 3 {
		return nil, pricing.ErrBadRequest
	}
	z.ID = "z1"
	return &z, nil
}

func (s *stubPricing) CreateZonePrice(ctx context.Context, zp pricing.ZonePrice) (*pricing.ZonePrice, error) {
	zp.ID = "zp1"
	return &zp, nil
}

func (s *stubPricing) CreateSurcharge(ctx context.Context, sc pricing.Surcharge) (*pricing.Surcharge, error) {
	sc.ID = "sc1"
	return &sc, nil
}

func (s *stubPricing) Delete(ctx context.Context, kind pricing.CatalogKind, tenantID, id types.ID) error {
	return s.deleteEr
}

type stubJobs struct {
	jobs    map[types.ID]*job.Job
	created *job.CreateCommand
}

func (s *stubJobs) Create(ctx context.Context, cmd job.CreateCommand) (*job.CreateResult, error) {
	s.created = &cmd
	j := &job.Job{ID: "j-new", TenantID: cmd.TenantID, Pickup: cmd.Pickup, Dropoff: cmd.Dropoff, PickupTime: cmd.PickupTime, Fare: decimal.NewFromInt(12), Status: job.StatusPending}
	res := &job.CreateResult{Job: j, Quote: pricing.Quote{Price: j.Fare, Breakdown: pricing.Breakdown{Base: j.Fare, Currency: "GBP"}}}
	if cmd.IsWaitAndReturn {
		ret := &job.Job{ID: "j-ret", TenantID: cmd.TenantID, Pickup: cmd.Dropoff, Dropoff: cmd.Pickup, Status: job.StatusPending}
		rq := res.Quote
		res.Return, res.ReturnQuote = ret, &rq
	}
	return res, nil
}

func (s *stubJobs) Get(ctx context.Context, id types.ID) (*job.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return j, nil
}

func (s *stubJobs) List(ctx context.Context, f job.ListFilter) ([]job.Job, error) {
	var out []job.Job
	for _, j := range s.jobs {
		if j.TenantID == f.TenantID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *stubJobs) Events(ctx context.Context, id types.ID) ([]job.Event, error) {
	return []job.Event{{JobID: id, FromStatus: job.StatusNone, ToStatus: job.StatusPending, ActorType: "booking"}}, nil
}

func (s *stubJobs) Advance(ctx context.Context, cmd job.AdvanceCommand) error {
	if cmd.To == job.StatusCompleted {
		return job.ErrInvalidState
	}
	return nil
}

func (s *stubJobs) Cancel(ctx context.Context, cmd job.CancelCommand) error     { return nil }
func (s *stubJobs) Unassign(ctx context.Context, cmd job.UnassignCommand) error { return nil }

type stubDrivers struct {
	drivers   map[types.ID]*driver.Driver
	reportErr error
}

func (s *stubDrivers) Register(ctx context.Context, cmd driver.RegisterCommand) (*driver.Driver, error) {
	return &driver.Driver{ID: cmd.ID, TenantID: cmd.TenantID, Name: cmd.Name, Status: driver.StatusOffDuty}, nil
}

func (s *stubDrivers) Get(ctx context.Context, id types.ID) (*driver.Driver, error) {
	d, ok := s.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return d, nil
}

func (s *stubDrivers) ReportStatus(ctx context.Context, cmd driver.ReportStatusCommand) (*driver.Driver, error) {
	if s.reportErr != nil {
		return nil, s.reportErr
	}
	d := *s.drivers[cmd.DriverID]
	d.Status = cmd.Status
	return &d, nil
}

func (s *stubDrivers) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if !p.InRange() {
		return types.ErrMalformedLocation
	}
	return nil
}

type stubDispatch struct {
	assignErr error
	ranTenant types.ID
}

func (s *stubDispatch) RunTenant(ctx context.Context, tenantID types.ID) (dispatch.Report, error) {
	s.ranTenant = tenantID
	return dispatch.Report{TenantID: tenantID, Assigned: 2, Failed: 1}, nil
}

func (s *stubDispatch) RunAll(ctx context.Context) (dispatch.Summary, error) {
	return dispatch.Summary{Assigned: 5, Tenants: []dispatch.Report{}}, nil
}

func (s *stubDispatch) Assign(ctx context.Context, cmd dispatch.AssignCommand) (*dispatch.Assignment, error) {
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	return &dispatch.Assignment{JobID: cmd.JobID, DriverID: cmd.DriverID}, nil
}

type stubTenants struct{}

func (stubTenants) Get(ctx context.Context, id types.ID) (*tenant.Tenant, error) {
	switch id {
	case "acme":
		return &tenant.Tenant{ID: id, Name: "Acme Cars", Currency: "GBP", Timezone: "Europe/London"}, nil
	case "kyoto":
		return &tenant.Tenant{ID: id, Name: "Kyoto Taxi", Currency: "JPY", Timezone: "Asia/Tokyo"}, nil
	}
	return nil, tenant.ErrNotFound
}

func (stubTenants) UpdateSettings(ctx context.Context, cmd tenant.SettingsCommand) (*tenant.Tenant, error) {
	t := &tenant.Tenant{ID: cmd.TenantID, Name: "Acme Cars"}
	if cmd.AutoDispatch != nil {
		t.AutoDispatch = *cmd.AutoDispatch
	}
	return t, nil
}

type fixture struct {
	pricing  *stubPricing
	jobs     *stubJobs
	drivers  *stubDrivers
	dispatch *stubDispatch
}

func newFixture() *fixture {
	driverID := types.ID("drv1")
	return &fixture{
		pricing: &stubPricing{quote: pricing.Quote{
			Price: decimal.RequireFromString("27.5"),
			Breakdown: pricing.Breakdown{
				Base:           decimal.RequireFromString("25"),
				SurchargeTotal: decimal.RequireFromString("2.5"),
				Surcharges: []pricing.AppliedSurcharge{{
					ID: "sc1", Name: "Late", Type: pricing.SurchargePercent,
					Value: decimal.NewFromInt(10), Amount: decimal.RequireFromString("2.5"),
				}},
				VehicleType: "Saloon",
				Currency:    "GBP",
			},
		}},
		jobs: &stubJobs{jobs: map[types.ID]*job.Job{
			"j1": {ID: "j1", TenantID: "acme", Status: job.StatusDispatched, DriverID: &driverID, Fare: decimal.NewFromInt(10)},
			"j2": {ID: "j2", TenantID: "other", Status: job.StatusPending, Fare: decimal.NewFromInt(10)},
		}},
		drivers: &stubDrivers{drivers: map[types.ID]*driver.Driver{
			"drv1": {ID: "drv1", TenantID: "acme", Name: "Sam", Status: driver.StatusFree},
		}},
		dispatch: &stubDispatch{},
	}
}

func (f *fixture) router(id *infra.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return httptransport.NewRouter(httptransport.RouterDeps{
		Pricing:  f.pricing,
		Jobs:     f.jobs,
		Drivers:  f.drivers,
		Dispatch: f.dispatch,
		Tenants:  stubTenants{},
		Verifier: &stubTokenVerifier{id: id},
		Log:      logging.Discard(),
	})
}

var (
	dispatcher = &infra.Identity{UID: "disp1", Role: "dispatcher", TenantID: "acme"}
	admin      = &infra.Identity{UID: "root", Role: "admin"}
	driverDrv1 = &infra.Identity{UID: "drv1", Role: "driver", TenantID: "acme"}
	driverDrv2 = &infra.Identity{UID: "drv2", Role: "driver", TenantID: "acme"}
)

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthAndMetricsNeedNoAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newFixture().router(nil)
	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
	}
}

func TestQuote_Unauthenticated(t *testing.T) {
	f := newFixture()
	gin.SetMode(gin.TestMode)
	r := httptransport.NewRouter(httptransport.RouterDeps{
		Pricing: f.pricing, Jobs: f.jobs, Drivers: f.drivers, Dispatch: f.dispatch, Tenants: stubTenants{},
		Verifier: &stubTokenVerifier{err: errors.New("expired")},
		Log:      logging.Discard(),
	})
	w := doRequest(r, http.MethodPost, "/api/pricing/quote", map[string]any{"pickup": "A", "dropoff": "B"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestQuote_UsesCallerTenantAndFormatsMoney(t *testing.T) {
	f := newFixture()
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/pricing/quote", map[string]any{
		"pickup":      "Heathrow Terminal 5",
		"dropoff":     "Paddington",
		"pickupTime":  "2026-03-02T23:30:00Z",
		"vehicleType": "Saloon",
		"pickupLat":   51.47,
		"pickupLng":   -0.49,
		"waitingTime": 30,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["price"] != "27.50" {
		t.Errorf("price = %v, want 27.50", body["price"])
	}
	b := body["breakdown"].(map[string]any)
	if b["base"] != "25.00" || b["isFixed"] != false {
		t.Errorf("breakdown = %v", b)
	}
	if sc := b["surcharges"].([]any); len(sc) != 1 {
		t.Errorf("surcharges = %v", sc)
	}

	req := f.pricing.lastReq
	if req.TenantID != "acme" {
		t.Errorf("tenant = %s, want caller's tenant", req.TenantID)
	}
	if !req.PickupCoord.Valid || req.DropoffCoord.Valid {
		t.Errorf("coords = %+v / %+v", req.PickupCoord, req.DropoffCoord)
	}
	if req.WaitingTime != 30*time.Minute {
		t.Errorf("waiting = %v", req.WaitingTime)
	}
	if !req.PickupTime.Equal(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)) {
		t.Errorf("pickup time = %v", req.PickupTime)
	}
}

func TestQuote_DegradedStillOK(t *testing.T) {
	f := newFixture()
	f.pricing.quote = pricing.Quote{
		Price:     decimal.NewFromInt(10),
		Breakdown: pricing.Breakdown{Base: decimal.NewFromInt(10), Currency: "GBP", Degraded: true, Error: "distance unavailable"},
	}
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/pricing/quote", map[string]any{"pickup": "A", "dropoff": "B"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	b := decode(t, w)["breakdown"].(map[string]any)
	if b["error"] != "distance unavailable" || b["degraded"] != true {
		t.Errorf("breakdown = %v", b)
	}
}

func TestQuote_Validation(t *testing.T) {
	f := newFixture()
	r := f.router(dispatcher)
	cases := []map[string]any{
		{"pickup": "A"},
		{"pickup": "A", "dropoff": "B", "pickupTime": "tomorrow"},
		{"pickup": "A", "dropoff": "B", "pickupLat": 51.5},
		{"pickup": "A", "dropoff": "B", "waitingTime": -5},
		{"pickup": "A", "dropoff": "B", "pickupLat": 200, "pickupLng": 0},
		{"pickup": "A", "dropoff": "B", "dropoffLat": 51.5, "dropoffLng": -181},
	}
	for _, body := range cases {
		if w := doRequest(r, http.MethodPost, "/api/pricing/quote", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestQuote_OtherTenantForbidden(t *testing.T) {
	f := newFixture()
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/pricing/quote", map[string]any{
		"tenantId": "other", "pickup": "A", "dropoff": "B",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestQuote_DriverForbidden(t *testing.T) {
	f := newFixture()
	w := doRequest(f.router(driverDrv1), http.MethodPost, "/api/pricing/quote", map[string]any{"pickup": "A", "dropoff": "B"})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestCreateJob_WaitAndReturn(t *testing.T) {
	f := newFixture()
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/jobs", map[string]any{
		"pickup":          "A",
		"dropoff":         "B",
		"pickupTime":      "2026-03-02T10:00:00Z",
		"isWaitAndReturn": true,
		"waitingTime":     45,
		"passengerName":   "Jo",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if _, ok := body["returnJob"]; !ok {
		t.Error("missing returnJob")
	}
	if f.jobs.created.WaitingTime != 45*time.Minute || f.jobs.created.PassengerName != "Jo" {
		t.Errorf("command = %+v", f.jobs.created)
	}
}

func TestGetJob_Access(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name string
		id   *infra.Identity
		path string
		want int
	}{
		{"dispatcher own tenant", dispatcher, "/api/jobs/j1", http.StatusOK},
		{"dispatcher other tenant", dispatcher, "/api/jobs/j2", http.StatusForbidden},
		{"admin any tenant", admin, "/api/jobs/j2", http.StatusOK},
		{"assigned driver", driverDrv1, "/api/jobs/j1", http.StatusOK},
		{"other driver", driverDrv2, "/api/jobs/j1", http.StatusForbidden},
		{"missing job", dispatcher, "/api/jobs/nope", http.StatusNotFound},
		{"bad id", dispatcher, "/api/jobs/a%20b", http.StatusBadRequest},
		{"events", driverDrv1, "/api/jobs/j1/events", http.StatusOK},
	}
	for _, tc := range cases {
		if w := doRequest(f.router(tc.id), http.MethodGet, tc.path, nil); w.Code != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestGetJob_FareUsesTenantCurrency(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["jk"] = &job.Job{ID: "jk", TenantID: "kyoto", Status: job.StatusPending, Fare: decimal.RequireFromString("4200")}
	r := f.router(admin)

	w := doRequest(r, http.MethodGet, "/api/jobs/jk", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["fare"]; got != "4200" {
		t.Errorf("JPY fare = %v, want 4200", got)
	}

	w = doRequest(r, http.MethodGet, "/api/jobs/j1", nil)
	if got := decode(t, w)["fare"]; got != "10.00" {
		t.Errorf("GBP fare = %v, want 10.00", got)
	}

	w = doRequest(r, http.MethodGet, "/api/jobs?tenantId=kyoto", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d: %s", w.Code, w.Body.String())
	}
	jobs, _ := decode(t, w)["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("list returned %d jobs, want 1", len(jobs))
	}
	if got := jobs[0].(map[string]any)["fare"]; got != "4200" {
		t.Errorf("listed JPY fare = %v, want 4200", got)
	}
}

func TestJobStatus_DriverAdvances(t *testing.T) {
	f := newFixture()
	r := f.router(driverDrv1)
	if w := doRequest(r, http.MethodPost, "/api/jobs/j1/status", map[string]any{"status": "EN_ROUTE"}); w.Code != http.StatusOK {
		t.Errorf("EN_ROUTE: got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/jobs/j1/status", map[string]any{"status": "COMPLETED"}); w.Code != http.StatusConflict {
		t.Errorf("invalid transition: got %d, want 409", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/jobs/j1/cancel", nil); w.Code != http.StatusForbidden {
		t.Errorf("driver cancel: got %d, want 403", w.Code)
	}
}

func TestAssign_MapsDriverUnavailable(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["j3"] = &job.Job{ID: "j3", TenantID: "acme", Status: job.StatusPending}
	f.dispatch.assignErr = dispatch.ErrDriverUnavailable
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/jobs/j3/assign", map[string]any{"driverId": "drv1"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if w := doRequest(f.router(dispatcher), http.MethodPost, "/api/jobs/j3/assign", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing driver: expected 400, got %d", w.Code)
	}
}

func TestDriverEndpoints(t *testing.T) {
	f := newFixture()
	if w := doRequest(f.router(driverDrv1), http.MethodPut, "/api/drivers/drv1/location", map[string]any{"lat": 51.5, "lng": -0.1}); w.Code != http.StatusOK {
		t.Errorf("own location: got %d", w.Code)
	}
	if w := doRequest(f.router(driverDrv2), http.MethodPut, "/api/drivers/drv1/location", map[string]any{"lat": 51.5, "lng": -0.1}); w.Code != http.StatusForbidden {
		t.Errorf("other driver's location: got %d, want 403", w.Code)
	}
	if w := doRequest(f.router(driverDrv1), http.MethodPut, "/api/drivers/drv1/location", map[string]any{"lat": 95, "lng": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("out of range: got %d, want 400", w.Code)
	}

	f.drivers.reportErr = driver.ErrConflict
	if w := doRequest(f.router(driverDrv1), http.MethodPut, "/api/drivers/drv1/status", map[string]any{"status": "off_duty", "expectedVersion": 1}); w.Code != http.StatusConflict {
		t.Errorf("stale status: got %d, want 409", w.Code)
	}

	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/drivers", map[string]any{"id": "drv9", "name": "Kim"})
	if w.Code != http.StatusCreated || decode(t, w)["tenantId"] != "acme" {
		t.Errorf("register: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(f.router(dispatcher), http.MethodPost, "/api/drivers", map[string]any{"id": "drv8", "name": "Lee", "lat": 51.5, "lng": 190})
	if w.Code != http.StatusBadRequest {
		t.Errorf("register out of range: got %d, want 400", w.Code)
	}
}

func TestDispatchRun(t *testing.T) {
	f := newFixture()
	w := doRequest(f.router(dispatcher), http.MethodPost, "/api/dispatch/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["assigned"] != float64(2) || body["failed"] != float64(1) || f.dispatch.ranTenant != "acme" {
		t.Errorf("body = %v, tenant = %s", body, f.dispatch.ranTenant)
	}

	w = doRequest(f.router(admin), http.MethodPost, "/api/dispatch/run", nil)
	if w.Code != http.StatusOK || decode(t, w)["assigned"] != float64(5) {
		t.Errorf("admin run all: %d %s", w.Code, w.Body.String())
	}
}

func TestTenantCatalog(t *testing.T) {
	f := newFixture()
	r := f.router(dispatcher)

	if w := doRequest(r, http.MethodGet, "/api/tenants/acme", nil); w.Code != http.StatusOK {
		t.Errorf("get tenant: %d", w.Code)
	}
	if w := doRequest(r, http.MethodPatch, "/api/tenants/acme", map[string]any{"autoDispatch": true}); w.Code != http.StatusOK || decode(t, w)["autoDispatch"] != true {
		t.Errorf("settings: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPut, "/api/tenants/acme/tariffs/Saloon", map[string]any{"baseRate": "4.20", "perMile": 2.13, "minFare": 5}); w.Code != http.StatusOK {
		t.Errorf("tariff: %d %s", w.Code, w.Body.String())
	}
	f.pricing.tariffEr = pricing.ErrInvalidTariff
	if w := doRequest(r, http.MethodPut, "/api/tenants/acme/tariffs/Saloon", map[string]any{"baseRate": -1}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid tariff: %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/tenants/other/tariffs/Saloon", map[string]any{"baseRate": 1}); w.Code != http.StatusForbidden {
		t.Errorf("other tenant tariff: %d", w.Code)
	}

	zone := map[string]any{
		"name":    "Central",
		"geojson": map[string]any{"type": "Polygon", "coordinates": [][][]float64{{{-0.2, 51.4}, {0, 51.4}, {0, 51.6}, {-0.2, 51.6}, {-0.2, 51.4}}}},
	}
	if w := doRequest(r, http.MethodPost, "/api/tenants/acme/zones", zone); w.Code != http.StatusCreated {
		t.Errorf("zone: %d %s", w.Code, w.Body.String())
	}
	surcharge := map[string]any{"name": "Night", "type": "percent", "value": 20, "startTime": "22:00", "endTime": "05:00", "days": []int{5, 6}}
	if w := doRequest(r, http.MethodPost, "/api/tenants/acme/surcharges", surcharge); w.Code != http.StatusCreated {
		t.Errorf("surcharge: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/api/tenants/acme/surcharges", map[string]any{"type": "FLAT", "startDate": "2026/12/25"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: %d", w.Code)
	}

	f.pricing.deleteEr = pricing.ErrNotFound
	if w := doRequest(r, http.MethodDelete, "/api/tenants/acme/zones/z404", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing: %d", w.Code)
	}
	f.pricing.deleteEr = nil
	if w := doRequest(r, http.MethodDelete, "/api/tenants/acme/fixed-prices/fp1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
}
