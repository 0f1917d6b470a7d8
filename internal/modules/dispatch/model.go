// README: Dispatch pass inputs, results and events.
package dispatch

import (
	"errors"
	"time"

	"taxidispatch/internal/types"
)

var (
	ErrNoCandidateDriver = errors.New("no candidate driver")
	ErrDriverUnavailable = errors.New("driver unavailable")
	ErrJobUnavailable    = errors.New("job unavailable")
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
)

// DueJob is an unassigned job whose pickup falls inside the lookahead window.
type DueJob struct {
	ID                  types.ID
	TenantID            types.ID
	Pickup              string
	PickupCoord         types.NullPoint
	PickupTime          time.Time
	VehicleType         string
	PreAssignedDriverID *types.ID
}

// DriverRecord is a FREE driver as stored; Location is the raw stored text.
type DriverRecord struct {
	ID       types.ID
	TenantID types.ID
	Name     string
	Location *string
}

type Candidate struct {
	DriverID types.ID
	Name     string
	Location types.Point
	// Miles to the pickup, set by RankByProximity.
	Miles float64
}

type AssignParams struct {
	JobID     types.ID
	DriverID  types.ID
	ActorType string
	ActorID   *types.ID
}

type Assignment struct {
	JobID    types.ID  `json:"jobId"`
	DriverID types.ID  `json:"driverId"`
	Miles    float64   `json:"distanceMiles"`
	At       time.Time `json:"at"`
}

type Failure struct {
	JobID  types.ID `json:"jobId"`
	Reason string   `json:"reason"`
}

type Report struct {
	TenantID    types.ID      `json:"tenantId"`
	Assigned    int           `json:"assigned"`
	Failed      int           `json:"failed"`
	Skipped     bool          `json:"skipped"`
	Assignments []Assignment  `json:"assignments"`
	Failures    []Failure     `json:"failures"`
	Duration    time.Duration `json:"-"`
}

// Summary aggregates the reports of one RunAll.
type Summary struct {
	Assigned int      `json:"assigned"`
	Failed   int      `json:"failed"`
	Tenants  []Report `json:"tenants"`
}

type EventType string

const (
	EventJobAssigned   EventType = "job.assigned"
	EventJobUnassigned EventType = "job.unassigned-pass"
)

type Event struct {
	Type     EventType `json:"type"`
	TenantID types.ID  `json:"tenantId"`
	JobID    types.ID  `json:"jobId"`
	DriverID *types.ID `json:"driverId,omitempty"`
	Miles    float64   `json:"distanceMiles,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

const (
	reasonNoCandidate       = "no_candidate_driver"
	reasonDriverUnavailable = "driver_unavailable"
	reasonNoPickup          = "pickup_unavailable"
	reasonStoreError        = "store_error"
)
