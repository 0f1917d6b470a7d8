// README: Job service: booking intake, return-leg pairing and status transitions.
package job

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/tenant"
	"taxidispatch/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("job not found")
	ErrConflict     = errors.New("job state conflict")
	ErrBadRequest   = errors.New("bad request")
)

type Repository interface {
	Create(ctx context.Context, jobs ...*Job) error
	Get(ctx context.Context, id types.ID) (*Job, error)
	List(ctx context.Context, f ListFilter) ([]Job, error)
	Transition(ctx context.Context, t Transition) error
	Events(ctx context.Context, jobID types.ID) ([]Event, error)
}

type Pricer interface {
	Calculate(ctx context.Context, req pricing.Request) pricing.Quote
}

type Tenants interface {
	Get(ctx context.Context, id types.ID) (*tenant.Tenant, error)
}

// DispatchTrigger asks the dispatcher for an early pass. It must not block.
type DispatchTrigger interface {
	Trigger(tenantID types.ID)
}

type Service struct {
	store   Repository
	pricing Pricer
	tenants Tenants
	trigger DispatchTrigger
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewService(store Repository, pricing Pricer, tenants Tenants, log logrus.FieldLogger) *Service {
	return &Service{store: store, pricing: pricing, tenants: tenants, log: log, now: time.Now}
}

// SetTrigger wires the dispatcher after both services exist.
func (s *Service) SetTrigger(t DispatchTrigger) {
	s.trigger = t
}

type CreateCommand struct {
	TenantID            types.ID
	Pickup              string
	Dropoff             string
	Vias                []string
	PickupCoord         types.NullPoint
	DropoffCoord        types.NullPoint
	DistanceMiles       *float64
	VehicleType         string
	PickupTime          time.Time
	IsWaitAndReturn     bool
	WaitingTime         time.Duration
	PreAssignedDriverID *types.ID
	PassengerName       string
	PassengerPhone      string
	Notes               string
}

type CreateResult struct {
	Job         *Job
	Quote       pricing.Quote
	Return      *Job
	ReturnQuote *pricing.Quote
}

// Create prices and persists a booking. A degraded quote is still persisted. Wait
// and return bookings get a paired return job picked up after the waiting time.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if cmd.TenantID == "" || strings.TrimSpace(cmd.Pickup) == "" || strings.TrimSpace(cmd.Dropoff) == "" {
		return nil, ErrBadRequest
	}
	if cmd.PickupTime.IsZero() || cmd.WaitingTime < 0 {
		return nil, ErrBadRequest
	}
	now := s.now()

	quote := s.pricing.Calculate(ctx, pricing.Request{
		TenantID:        cmd.TenantID,
		Pickup:          cmd.Pickup,
		Dropoff:         cmd.Dropoff,
		Vias:            cmd.Vias,
		DistanceMiles:   cmd.DistanceMiles,
		PickupTime:      cmd.PickupTime,
		VehicleType:     cmd.VehicleType,
		IsWaitAndReturn: cmd.IsWaitAndReturn,
		WaitingTime:     cmd.WaitingTime,
		PickupCoord:     cmd.PickupCoord,
		DropoffCoord:    cmd.DropoffCoord,
	})

	out := &Job{
		ID:                  types.NewID(),
		TenantID:            cmd.TenantID,
		Pickup:              cmd.Pickup,
		Dropoff:             cmd.Dropoff,
		Vias:                cmd.Vias,
		PickupCoord:         cmd.PickupCoord,
		DropoffCoord:        cmd.DropoffCoord,
		VehicleType:         quote.Breakdown.VehicleType,
		PickupTime:          cmd.PickupTime,
		Fare:                quote.Price,
		IsFixedPrice:        quote.Breakdown.IsFixed,
		IsWaitAndReturn:     cmd.IsWaitAndReturn,
		WaitingTime:         cmd.WaitingTime,
		Status:              StatusPending,
		PreAssignedDriverID: cmd.PreAssignedDriverID,
		PassengerName:       cmd.PassengerName,
		PassengerPhone:      cmd.PassengerPhone,
		Notes:               cmd.Notes,
		CreatedAt:           now,
	}
	res := &CreateResult{Job: out, Quote: quote}
	jobs := []*Job{out}

	if cmd.IsWaitAndReturn {
		ret, retQuote := s.returnLeg(ctx, cmd, out)
		out.ReturnJobID = &ret.ID
		ret.ReturnJobID = &out.ID
		res.Return = ret
		res.ReturnQuote = &retQuote
		jobs = append(jobs, ret)
	}

	if err := s.store.Create(ctx, jobs...); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"tenant_id": out.TenantID, "job_id": out.ID})
	if quote.Breakdown.Degraded {
		log.WithField("error", quote.Breakdown.Error).Warn("job booked with degraded fare")
	}
	s.maybeTrigger(ctx, out.TenantID)
	return res, nil
}

func (s *Service) returnLeg(ctx context.Context, cmd CreateCommand, out *Job) (*Job, pricing.Quote) {
	vias := make([]string, len(cmd.Vias))
	for i, v := range cmd.Vias {
		vias[len(cmd.Vias)-1-i] = v
	}
	pickupTime := cmd.PickupTime.Add(cmd.WaitingTime)
	quote := s.pricing.Calculate(ctx, pricing.Request{
		TenantID:        cmd.TenantID,
		Pickup:          cmd.Dropoff,
		Dropoff:         cmd.Pickup,
		Vias:            vias,
		DistanceMiles:   cmd.DistanceMiles,
		PickupTime:      pickupTime,
		VehicleType:     cmd.VehicleType,
		IsWaitAndReturn: true,
		PickupCoord:     cmd.DropoffCoord,
		DropoffCoord:    cmd.PickupCoord,
	})
	return &Job{
		ID:                  types.NewID(),
		TenantID:            cmd.TenantID,
		Pickup:              cmd.Dropoff,
		Dropoff:             cmd.Pickup,
		Vias:                vias,
		PickupCoord:         cmd.DropoffCoord,
		DropoffCoord:        cmd.PickupCoord,
		VehicleType:         quote.Breakdown.VehicleType,
		PickupTime:          pickupTime,
		Fare:                quote.Price,
		IsFixedPrice:        quote.Breakdown.IsFixed,
		IsWaitAndReturn:     true,
		Status:              StatusPending,
		PreAssignedDriverID: cmd.PreAssignedDriverID,
		PassengerName:       cmd.PassengerName,
		PassengerPhone:      cmd.PassengerPhone,
		Notes:               cmd.Notes,
		CreatedAt:           out.CreatedAt,
	}, quote
}

func (s *Service) maybeTrigger(ctx context.Context, tenantID types.ID) {
	if s.trigger == nil || s.tenants == nil {
		return
	}
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		s.log.WithError(err).WithField("tenant_id", tenantID).Warn("tenant lookup failed, dispatch not triggered")
		return
	}
	if t.AutoDispatch {
		s.trigger.Trigger(tenantID)
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Job, error) {
	if f.TenantID == "" {
		return nil, ErrBadRequest
	}
	return s.store.List(ctx, f)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

type AdvanceCommand struct {
	JobID     types.ID
	To        Status
	ActorType string
	ActorID   *types.ID
}

// Advance moves a dispatched job along EN_ROUTE -> ARRIVED -> POB -> COMPLETED.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) error {
	switch cmd.To {
	case StatusEnRoute, StatusArrived, StatusPOB, StatusCompleted:
	default:
		return ErrInvalidState
	}
	return s.transition(ctx, cmd.JobID, cmd.To, cmd.ActorType, cmd.ActorID, "")
}

type CancelCommand struct {
	JobID     types.ID
	NoShow    bool
	ActorType string
	ActorID   *types.ID
	Reason    string
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	to := StatusCancelled
	if cmd.NoShow {
		to = StatusNoShow
	}
	return s.transition(ctx, cmd.JobID, to, cmd.ActorType, cmd.ActorID, cmd.Reason)
}

type UnassignCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   *types.ID
	Reason    string
}

// Unassign returns a dispatched job to the pool and frees its driver.
func (s *Service) Unassign(ctx context.Context, cmd UnassignCommand) error {
	if err := s.transition(ctx, cmd.JobID, StatusUnassigned, cmd.ActorType, cmd.ActorID, cmd.Reason); err != nil {
		return err
	}
	if j, err := s.store.Get(ctx, cmd.JobID); err == nil {
		s.maybeTrigger(ctx, j.TenantID)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id types.ID, to Status, actorType string, actorID *types.ID, reason string) error {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(j.Status, to) {
		return ErrInvalidState
	}
	if HoldsDriver(to) && j.DriverID == nil {
		return ErrInvalidState
	}
	if actorType == "" {
		actorType = "dispatcher"
	}
	if err := s.store.Transition(ctx, Transition{
		Job:       j,
		To:        to,
		ActorType: actorType,
		ActorID:   actorID,
		Reason:    reason,
	}); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"tenant_id": j.TenantID,
		"job_id":    j.ID,
		"from":      j.Status,
		"to":        to,
	}).Info("job status changed")
	return nil
}
