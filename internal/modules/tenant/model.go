// README: Tenant settings read by pricing and dispatch.
package tenant

import (
	"errors"
	"time"
	// Tenant zones must resolve on hosts and images without a zoneinfo database.
	_ "time/tzdata"

	"taxidispatch/internal/types"
)

const DefaultTimezone = "Europe/London"

var ErrNotFound = errors.New("tenant not found")

type Tenant struct {
	ID                   types.ID
	Name                 string
	Home                 types.NullPoint
	AutoDispatch         bool
	ZonePricing          bool
	Currency             string
	Timezone             string
	SurchargeFixedPrices bool
	CreatedAt            time.Time
}

// Location returns the tenant's time zone, falling back to DefaultTimezone for
// unknown names.
func (t *Tenant) Location() *time.Location {
	if t.Timezone != "" {
		if loc, err := time.LoadLocation(t.Timezone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}
