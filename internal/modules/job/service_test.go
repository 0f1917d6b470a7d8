package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taxidispatch/internal/logging"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

type memStore struct {
	mu     sync.Mutex
	jobs   map[types.ID]*Job
	events []Event
	err    error
}

func newMemStore() *memStore {
	return &memStore{jobs: map[types.ID]*Job{}}
}

func (m *memStore) Create(ctx context.Context, jobs ...*Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, j := range jobs {
		cp := *j
		m.jobs[j.ID] = &cp
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, id types.ID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) List(ctx context.Context, f ListFilter) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.TenantID == f.TenantID && (f.Status == "" || j.Status == f.Status) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStore) Transition(ctx context.Context, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[t.Job.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != t.Job.Status || cur.StatusVersion != t.Job.StatusVersion {
		return ErrConflict
	}
	cur.Status = t.To
	cur.StatusVersion++
	if t.To == StatusUnassigned {
		cur.DriverID = nil
	}
	m.events = append(m.events, Event{JobID: cur.ID, FromStatus: t.Job.Status, ToStatus: t.To, ActorType: t.ActorType})
	return nil
}

func (m *memStore) Events(ctx context.Context, jobID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubPricer struct {
	calls []pricing.Request
	quote pricing.Quote
}

func (p *stubPricer) Calculate(ctx context.Context, req pricing.Request) pricing.Quote {
	p.calls = append(p.calls, req)
	q := p.quote
	if q.Breakdown.VehicleType == "" {
		q.Breakdown.VehicleType = "Saloon"
	}
	return q
}

type stubTenants struct {
	autoDispatch bool
}

func (s stubTenants) Get(ctx context.Context, id types.ID) (*tenant.Tenant, error) {
	return &tenant.Tenant{ID: id, AutoDispatch: s.autoDispatch}, nil
}

type recordingTrigger struct {
	tenants []types.ID
}

func (r *recordingTrigger) Trigger(tenantID types.ID) {
	r.tenants = append(r.tenants, tenantID)
}

var pickupAt = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

func newTestService(store *memStore, pricer *stubPricer, autoDispatch bool) (*Service, *recordingTrigger) {
	svc := NewService(store, pricer, stubTenants{autoDispatch: autoDispatch}, logging.Discard())
	trig := &recordingTrigger{}
	svc.SetTrigger(trig)
	return svc, trig
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy path
		{StatusPending, StatusDispatched, true},
		{StatusUnassigned, StatusDispatched, true},
		{StatusDispatched, StatusEnRoute, true},
		{StatusEnRoute, StatusArrived, true},
		{StatusArrived, StatusPOB, true},
		{StatusPOB, StatusCompleted, true},
		// cancel and no-show from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusUnassigned, StatusNoShow, true},
		{StatusDispatched, StatusCancelled, true},
		{StatusEnRoute, StatusNoShow, true},
		{StatusArrived, StatusNoShow, true},
		{StatusPOB, StatusCancelled, true},
		// un-assign
		{StatusDispatched, StatusUnassigned, true},
		{StatusEnRoute, StatusUnassigned, true},
		{StatusArrived, StatusUnassigned, false},
		// terminal states are final
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusDispatched, false},
		{StatusNoShow, StatusCancelled, false},
		// no skipping
		{StatusPending, StatusEnRoute, false},
		{StatusDispatched, StatusPOB, false},
		{StatusEnRoute, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCreatePricesAndPersists(t *testing.T) {
	store := newMemStore()
	pricer := &stubPricer{quote: pricing.Quote{Price: decimal.RequireFromString("18.40"), Breakdown: pricing.Breakdown{IsFixed: true}}}
	svc, trig := newTestService(store, pricer, true)

	res, err := svc.Create(context.Background(), CreateCommand{
		TenantID: "t1", Pickup: "Kings Cross", Dropoff: "Heathrow T5",
		PickupTime: pickupAt, VehicleType: "Saloon",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := store.Get(context.Background(), res.Job.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if got.Status != StatusPending || !got.Fare.Equal(decimal.RequireFromString("18.40")) || !got.IsFixedPrice {
		t.Errorf("persisted job = %+v", got)
	}
	if res.Return != nil {
		t.Errorf("unexpected return job")
	}
	if len(trig.tenants) != 1 || trig.tenants[0] != "t1" {
		t.Errorf("triggered = %v, want [t1]", trig.tenants)
	}
}

func TestCreatePersistsDegradedFare(t *testing.T) {
	store := newMemStore()
	pricer := &stubPricer{quote: pricing.Quote{
		Price:     decimal.NewFromInt(10),
		Breakdown: pricing.Breakdown{Degraded: true, Error: "distance unavailable"},
	}}
	svc, _ := newTestService(store, pricer, false)

	res, err := svc.Create(context.Background(), CreateCommand{TenantID: "t1", Pickup: "a", Dropoff: "b", PickupTime: pickupAt})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !res.Quote.Breakdown.Degraded || !res.Job.Fare.Equal(decimal.NewFromInt(10)) {
		t.Errorf("result = %+v", res)
	}
	if len(store.jobs) != 1 {
		t.Errorf("persisted %d jobs, want 1", len(store.jobs))
	}
}

func TestCreateWaitAndReturnPairsReturnJob(t *testing.T) {
	store := newMemStore()
	pricer := &stubPricer{quote: pricing.Quote{Price: decimal.NewFromInt(20)}}
	svc, trig := newTestService(store, pricer, false)

	pickup := types.SomePoint(51.53, -0.12)
	res, err := svc.Create(context.Background(), CreateCommand{
		TenantID: "t1", Pickup: "Kings Cross", Dropoff: "Wembley",
		Vias:            []string{"Camden", "Kilburn"},
		PickupCoord:     pickup,
		PickupTime:      pickupAt,
		IsWaitAndReturn: true,
		WaitingTime:     45 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	out, ret := res.Job, res.Return
	if ret == nil {
		t.Fatal("no return job")
	}
	if ret.Pickup != "Wembley" || ret.Dropoff != "Kings Cross" {
		t.Errorf("return ends = %s -> %s", ret.Pickup, ret.Dropoff)
	}
	if ret.Vias[0] != "Kilburn" || ret.Vias[1] != "Camden" {
		t.Errorf("return vias = %v", ret.Vias)
	}
	if !ret.DropoffCoord.Valid || ret.DropoffCoord.Point != pickup.Point || ret.PickupCoord.Valid {
		t.Errorf("return coords = %v -> %v", ret.PickupCoord, ret.DropoffCoord)
	}
	if !ret.PickupTime.Equal(pickupAt.Add(45 * time.Minute)) {
		t.Errorf("return pickup = %s", ret.PickupTime)
	}
	if out.ReturnJobID == nil || *out.ReturnJobID != ret.ID || ret.ReturnJobID == nil || *ret.ReturnJobID != out.ID {
		t.Errorf("jobs not linked")
	}
	if len(store.jobs) != 2 || len(pricer.calls) != 2 {
		t.Errorf("jobs = %d pricing calls = %d, want 2 and 2", len(store.jobs), len(pricer.calls))
	}
	if len(trig.tenants) != 0 {
		t.Errorf("dispatch triggered without auto-dispatch")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubPricer{}, false)
	cases := []CreateCommand{
		{Pickup: "a", Dropoff: "b", PickupTime: pickupAt},
		{TenantID: "t1", Dropoff: "b", PickupTime: pickupAt},
		{TenantID: "t1", Pickup: "a", Dropoff: "  ", PickupTime: pickupAt},
		{TenantID: "t1", Pickup: "a", Dropoff: "b"},
		{TenantID: "t1", Pickup: "a", Dropoff: "b", PickupTime: pickupAt, WaitingTime: -time.Minute},
	}
	for i, cmd := range cases {
		if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, ErrBadRequest) {
			t.Errorf("case %d: error = %v, want ErrBadRequest", i, err)
		}
	}
}

func dispatchedJob(store *memStore) types.ID {
	d := types.ID("d1")
	j := &Job{ID: types.NewID(), TenantID: "t1", Status: StatusDispatched, StatusVersion: 1, DriverID: &d, PickupTime: pickupAt}
	store.jobs[j.ID] = j
	return j.ID
}

func TestAdvanceHappyPath(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, &stubPricer{}, false)
	ctx := context.Background()
	id := dispatchedJob(store)

	for _, to := range []Status{StatusEnRoute, StatusArrived, StatusPOB, StatusCompleted} {
		if err := svc.Advance(ctx, AdvanceCommand{JobID: id, To: to, ActorType: "driver"}); err != nil {
			t.Fatalf("Advance(%s) error = %v", to, err)
		}
	}
	j, _ := store.Get(ctx, id)
	if j.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", j.Status)
	}
	events, _ := svc.Events(ctx, id)
	if len(events) != 4 {
		t.Errorf("events = %d, want 4", len(events))
	}
}

func TestAdvanceRejections(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, &stubPricer{}, false)
	ctx := context.Background()

	pending := &Job{ID: "p1", TenantID: "t1", Status: StatusPending}
	store.jobs[pending.ID] = pending

	if err := svc.Advance(ctx, AdvanceCommand{JobID: "p1", To: StatusDispatched}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Advance to DISPATCHED error = %v, want ErrInvalidState", err)
	}
	if err := svc.Advance(ctx, AdvanceCommand{JobID: "p1", To: StatusEnRoute}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Advance skipping error = %v, want ErrInvalidState", err)
	}
	if err := svc.Advance(ctx, AdvanceCommand{JobID: "missing", To: StatusEnRoute}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Advance missing error = %v, want ErrNotFound", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{JobID: "p1", Reason: "customer called"}); err != nil {
		t.Errorf("Cancel() error = %v", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{JobID: "p1", NoShow: true}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel terminal error = %v, want ErrInvalidState", err)
	}
}

func TestUnassignClearsDriverAndTriggers(t *testing.T) {
	store := newMemStore()
	svc, trig := newTestService(store, &stubPricer{}, true)
	ctx := context.Background()
	id := dispatchedJob(store)

	if err := svc.Unassign(ctx, UnassignCommand{JobID: id, Reason: "vehicle fault"}); err != nil {
		t.Fatalf("Unassign() error = %v", err)
	}
	j, _ := store.Get(ctx, id)
	if j.Status != StatusUnassigned || j.DriverID != nil {
		t.Errorf("job after unassign = %s driver %v", j.Status, j.DriverID)
	}
	if len(trig.tenants) != 1 {
		t.Errorf("triggered %d times, want 1", len(trig.tenants))
	}
}

func TestTransitionStaleVersionConflicts(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	id := dispatchedJob(store)

	stale, _ := store.Get(ctx, id)
	if err := store.Transition(ctx, Transition{Job: stale, To: StatusEnRoute}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := store.Transition(ctx, Transition{Job: stale, To: StatusCancelled}); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale transition error = %v, want ErrConflict", err)
	}
}
