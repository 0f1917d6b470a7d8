// README: Dispatch loop: matches due jobs to the nearest FREE driver, per tenant, on a ticker or on demand.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taxidispatch/internal/config"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/observability"
	"taxidispatch/internal/types"
)

type Repository interface {
	DueJobs(ctx context.Context, tenantID types.ID, until time.Time) ([]DueJob, error)
	FreeDrivers(ctx context.Context, tenantID types.ID) ([]DriverRecord, error)
	SetPickupCoord(ctx context.Context, jobID types.ID, p types.Point) error
	Assign(ctx context.Context, p AssignParams) (types.ID, error)
}

type Tenants interface {
	ListAutoDispatch(ctx context.Context) ([]tenant.Tenant, error)
}

type Locator interface {
	Locate(ctx context.Context, address string, known types.NullPoint) (types.Point, error)
}

const (
	eventBuffer   = 256
	triggerBuffer = 64
	maxAttempts   = 2
)

type Service struct {
	store    Repository
	tenants  Tenants
	locator  Locator
	locker   Locker
	cfg      config.DispatchConfig
	log      logrus.FieldLogger
	now      func() time.Time
	events   chan Event
	triggers chan types.ID
}

// NewService accepts a nil locator (jobs without coordinates then fail) and a nil
// locker (passes are not serialised).
func NewService(store Repository, tenants Tenants, locator Locator, locker Locker, cfg config.DispatchConfig, log logrus.FieldLogger) *Service {
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = 30
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{
		store:    store,
		tenants:  tenants,
		locator:  locator,
		locker:   locker,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		events:   make(chan Event, eventBuffer),
		triggers: make(chan types.ID, triggerBuffer),
	}
}

// Events streams assignment outcomes. Events are dropped while the buffer is full.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Trigger requests an early pass for a tenant. It never blocks; a request made while
// the queue is full is served by the next tick.
func (s *Service) Trigger(tenantID types.ID) {
	select {
	case s.triggers <- tenantID:
	default:
		s.log.WithField("tenant_id", tenantID).Debug("dispatch trigger queue full")
	}
}

// RunTenant runs one pass for a tenant. Jobs that get no driver are counted in
// Report.Failed. The error is set when the pass could not load its inputs, or joins
// the store errors hit while assigning; the report is complete in the latter case.
func (s *Service) RunTenant(ctx context.Context, tenantID types.ID) (Report, error) {
	if tenantID == "" {
		return Report{}, ErrBadRequest
	}
	start := s.now()
	rep := Report{TenantID: tenantID, Assignments: []Assignment{}, Failures: []Failure{}}
	log := s.log.WithField("tenant_id", tenantID)

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, lockKey(tenantID), s.cfg.LockTTL)
		switch {
		case err != nil:
			log.WithError(err).Warn("dispatch lock unavailable, running unlocked")
		case !ok:
			rep.Skipped = true
			observability.DispatchPassesTotal.WithLabelValues("skipped").Inc()
			log.Debug("dispatch pass already running")
			return rep, nil
		default:
			defer release()
		}
	}

	jobs, err := s.store.DueJobs(ctx, tenantID, start.Add(s.cfg.Lookahead))
	if err != nil {
		observability.DispatchPassesTotal.WithLabelValues("error").Inc()
		return rep, fmt.Errorf("load due jobs: %w", err)
	}
	if len(jobs) == 0 {
		observability.DispatchPassesTotal.WithLabelValues("empty").Inc()
		return rep, nil
	}
	drivers, err := s.store.FreeDrivers(ctx, tenantID)
	if err != nil {
		observability.DispatchPassesTotal.WithLabelValues("error").Inc()
		return rep, fmt.Errorf("load free drivers: %w", err)
	}
	pool := FindAvailable(drivers, log)

	var storeErrs []error
	record := func(j DueJob, a *Assignment, reason string, err error) {
		jlog := log.WithField("job_id", j.ID)
		switch {
		case a != nil:
			rep.Assigned++
			rep.Assignments = append(rep.Assignments, *a)
			observability.DispatchAssignmentsTotal.Inc()
			s.emit(Event{Type: EventJobAssigned, TenantID: tenantID, JobID: j.ID, DriverID: types.IDPtr(a.DriverID), Miles: a.Miles, At: a.At})
			jlog.WithFields(logrus.Fields{"driver_id": a.DriverID, "distance_miles": a.Miles}).Info("job dispatched")
		case reason != "":
			rep.Failed++
			rep.Failures = append(rep.Failures, Failure{JobID: j.ID, Reason: reason})
			observability.DispatchJobFailuresTotal.WithLabelValues(reason).Inc()
			s.emit(Event{Type: EventJobUnassigned, TenantID: tenantID, JobID: j.ID, Reason: reason, At: s.now()})
			if err != nil {
				storeErrs = append(storeErrs, fmt.Errorf("job %s: %w", j.ID, err))
			}
		}
	}

pass:
	for _, group := range byPickupTime(jobs) {
		located := make([]locatedJob, 0, len(group))
		for _, j := range group {
			if ctx.Err() != nil {
				storeErrs = append(storeErrs, ctx.Err())
				break pass
			}
			if len(pool) == 0 && j.PreAssignedDriverID == nil {
				record(j, nil, reasonNoCandidate, nil)
				continue
			}
			jlog := log.WithField("job_id", j.ID)
			p, err := s.pickupPoint(ctx, jlog, j)
			if err != nil {
				jlog.WithError(err).Warn("pickup location unavailable")
				record(j, nil, reasonNoPickup, nil)
				continue
			}
			located = append(located, locatedJob{DueJob: j, pickup: p})
		}

		// Jobs due at the same time go nearest-driver first.
		for len(located) > 0 {
			if ctx.Err() != nil {
				storeErrs = append(storeErrs, ctx.Err())
				break pass
			}
			i := nextJob(located, pool)
			lj := located[i]
			located = append(located[:i], located[i+1:]...)
			a, reason, err := s.assignJob(ctx, log.WithField("job_id", lj.ID), lj, &pool)
			record(lj.DueJob, a, reason, err)
		}
	}

	rep.Duration = s.now().Sub(start)
	observability.DispatchPassDuration.Observe(rep.Duration.Seconds())
	outcome := "ok"
	if len(storeErrs) > 0 {
		outcome = "error"
	}
	observability.DispatchPassesTotal.WithLabelValues(outcome).Inc()
	log.WithFields(logrus.Fields{
		"assigned": rep.Assigned,
		"failed":   rep.Failed,
		"duration": rep.Duration.String(),
	}).Info("dispatch pass finished")
	return rep, errors.Join(storeErrs...)
}

type locatedJob struct {
	DueJob
	pickup types.Point
}

// byPickupTime splits jobs, already ordered by pickup time, into runs sharing a pickup time.
func byPickupTime(jobs []DueJob) [][]DueJob {
	var groups [][]DueJob
	for start := 0; start < len(jobs); {
		end := start + 1
		for end < len(jobs) && jobs[end].PickupTime.Equal(jobs[start].PickupTime) {
			end++
		}
		groups = append(groups, jobs[start:end])
		start = end
	}
	return groups
}

// nextJob picks the job to serve next: reserved jobs first, then the job whose
// nearest free driver is closest. Ties keep the store order.
func nextJob(jobs []locatedJob, pool []Candidate) int {
	best, bestMiles := 0, math.Inf(1)
	for i, j := range jobs {
		if j.PreAssignedDriverID != nil {
			return i
		}
		for _, c := range pool {
			if m := location.HaversineMiles(c.Location, j.pickup); m < bestMiles {
				best, bestMiles = i, m
			}
		}
	}
	return best
}

// assignJob returns the assignment, or the failure reason. Both are empty when the
// job was taken by someone else during the pass.
func (s *Service) assignJob(ctx context.Context, log logrus.FieldLogger, j locatedJob, pool *[]Candidate) (*Assignment, string, error) {
	var tries []Candidate
	if id := j.PreAssignedDriverID; id != nil {
		// a reserved driver is only ever offered their own job
		c, ok := findCandidate(*pool, *id)
		if ok {
			c.Miles = location.HaversineMiles(c.Location, j.pickup)
		} else {
			c = Candidate{DriverID: *id}
		}
		tries = []Candidate{c}
	} else {
		tries = RankByProximity(j.pickup, *pool)
		if len(tries) > maxAttempts {
			tries = tries[:maxAttempts]
		}
	}

	reason := reasonNoCandidate
	for _, c := range tries {
		_, err := s.store.Assign(ctx, AssignParams{JobID: j.ID, DriverID: c.DriverID, ActorType: "dispatcher"})
		switch {
		case err == nil:
			*pool = removeCandidate(*pool, c.DriverID)
			return &Assignment{JobID: j.ID, DriverID: c.DriverID, Miles: c.Miles, At: s.now()}, "", nil
		case errors.Is(err, ErrDriverUnavailable), errors.Is(err, ErrNotFound):
			log.WithField("driver_id", c.DriverID).Info("driver taken before assignment")
			*pool = removeCandidate(*pool, c.DriverID)
			reason = reasonDriverUnavailable
		case errors.Is(err, ErrJobUnavailable):
			log.Debug("job no longer assignable")
			return nil, "", nil
		default:
			log.WithError(err).Error("assignment failed")
			return nil, reasonStoreError, err
		}
	}
	return nil, reason, nil
}

func (s *Service) pickupPoint(ctx context.Context, log logrus.FieldLogger, j DueJob) (types.Point, error) {
	if j.PickupCoord.Valid {
		return j.PickupCoord.Point, nil
	}
	if s.locator == nil {
		return types.Point{}, fmt.Errorf("%w: no geocoder configured", location.ErrDistanceUnavailable)
	}
	p, err := s.locator.Locate(ctx, j.Pickup, j.PickupCoord)
	if err != nil {
		return types.Point{}, err
	}
	if err := s.store.SetPickupCoord(ctx, j.ID, p); err != nil {
		log.WithError(err).Warn("storing geocoded pickup failed")
	}
	return p, nil
}

// RunAll runs a pass for every auto-dispatch tenant, at most cfg.Concurrency at a
// time. One tenant's failure does not stop the others.
func (s *Service) RunAll(ctx context.Context) (Summary, error) {
	tenants, err := s.tenants.ListAutoDispatch(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list tenants: %w", err)
	}

	reports := make([]Report, len(tenants))
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range tenants {
		g.Go(func() error {
			rep, err := s.RunTenant(ctx, t.ID)
			reports[i] = rep
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].TenantID < reports[j].TenantID })
	sum := Summary{Tenants: reports}
	for _, r := range reports {
		sum.Assigned += r.Assigned
		sum.Failed += r.Failed
	}
	return sum, errors.Join(errs...)
}

// RunScheduler ticks every cfg.TickSeconds over all auto-dispatch tenants and serves
// triggers in between. It returns when ctx is done.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunAll(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("scheduled dispatch failed")
			}
		case id := <-s.triggers:
			if _, err := s.RunTenant(ctx, id); err != nil && ctx.Err() == nil {
				s.log.WithError(err).WithField("tenant_id", id).Error("triggered dispatch failed")
			}
		}
	}
}

type AssignCommand struct {
	JobID     types.ID
	DriverID  types.ID
	ActorType string
	ActorID   *types.ID
}

// Assign is the dispatcher's manual assignment. It goes through the same transaction
// as the loop, so a busy driver yields ErrDriverUnavailable.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Assignment, error) {
	if cmd.JobID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = "dispatcher"
	}
	tenantID, err := s.store.Assign(ctx, AssignParams{
		JobID:     cmd.JobID,
		DriverID:  cmd.DriverID,
		ActorType: actor,
		ActorID:   cmd.ActorID,
	})
	if err != nil {
		return nil, err
	}
	a := &Assignment{JobID: cmd.JobID, DriverID: cmd.DriverID, At: s.now()}
	observability.DispatchAssignmentsTotal.Inc()
	s.emit(Event{Type: EventJobAssigned, TenantID: tenantID, JobID: cmd.JobID, DriverID: types.IDPtr(cmd.DriverID), At: a.At})
	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"job_id":    cmd.JobID,
		"driver_id": cmd.DriverID,
	}).Info("job assigned manually")
	return a, nil
}

func (s *Service) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.WithFields(logrus.Fields{"tenant_id": e.TenantID, "job_id": e.JobID}).Debug("dispatch event dropped")
	}
}
