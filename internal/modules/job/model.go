// README: Job aggregate and status definitions.
package job

import (
	"time"

	"github.com/shopspring/decimal"

	"taxidispatch/internal/types"
)

type Status string

const (
	StatusNone       Status = "NONE"
	StatusPending    Status = "PENDING"
	StatusUnassigned Status = "UNASSIGNED"
	StatusDispatched Status = "DISPATCHED"
	StatusEnRoute    Status = "EN_ROUTE"
	StatusArrived    Status = "ARRIVED"
	StatusPOB        Status = "POB"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

type Job struct {
	ID                  types.ID
	TenantID            types.ID
	Pickup              string
	Dropoff             string
	Vias                []string
	PickupCoord         types.NullPoint
	DropoffCoord        types.NullPoint
	VehicleType         string
	PickupTime          time.Time
	Fare                decimal.Decimal
	IsFixedPrice        bool
	IsWaitAndReturn     bool
	WaitingTime         time.Duration
	ReturnJobID         *types.ID
	Status              Status
	StatusVersion       int
	DriverID            *types.ID
	PreAssignedDriverID *types.ID
	PassengerName       string
	PassengerPhone      string
	Notes               string
	CreatedAt           time.Time
	DispatchedAt        *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	CancelReason        *string
}

type Event struct {
	ID         int64
	JobID      types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	DriverID   *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions is the job state machine. DISPATCHED is entered only through
// the dispatcher's assignment transaction.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusDispatched, StatusCancelled, StatusNoShow},
	StatusUnassigned: {StatusDispatched, StatusCancelled, StatusNoShow},
	StatusDispatched: {StatusEnRoute, StatusUnassigned, StatusCancelled, StatusNoShow},
	StatusEnRoute:    {StatusArrived, StatusUnassigned, StatusCancelled, StatusNoShow},
	StatusArrived:    {StatusPOB, StatusCancelled, StatusNoShow},
	StatusPOB:        {StatusCompleted, StatusCancelled, StatusNoShow},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// HoldsDriver reports whether a job in status s keeps its driver occupied.
func HoldsDriver(s Status) bool {
	switch s {
	case StatusDispatched, StatusEnRoute, StatusArrived, StatusPOB:
		return true
	}
	return false
}

// ActiveStatuses lists HoldsDriver statuses for SQL filters.
var ActiveStatuses = []string{
	string(StatusDispatched), string(StatusEnRoute), string(StatusArrived), string(StatusPOB),
}
