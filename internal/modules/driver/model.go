// README: Driver aggregate and self-reported status rules.
package driver

import (
	"time"

	"taxidispatch/internal/types"
)

type Status string

const (
	StatusOffDuty Status = "OFF_DUTY"
	StatusFree    Status = "FREE"
	StatusBusy    Status = "BUSY"
	StatusPOB     Status = "POB"
)

type Driver struct {
	ID                types.ID
	TenantID          types.ID
	Name              string
	Status            Status
	StatusVersion     int
	Location          types.NullPoint
	LocationUpdatedAt *time.Time
	CreatedAt         time.Time
}

// ReportTransitions are the changes a driver may make to their own status.
// FREE -> BUSY is reserved for the dispatcher's assignment transaction.
var ReportTransitions = map[Status][]Status{
	StatusOffDuty: {StatusFree},
	StatusFree:    {StatusOffDuty},
	StatusBusy:    {StatusPOB, StatusFree},
	StatusPOB:     {StatusBusy, StatusFree},
}

func CanReport(from, to Status) bool {
	for _, s := range ReportTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidStatus(s Status) bool {
	_, ok := ReportTransitions[s]
	return ok
}
