package dispatch

import (
	"sort"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/types"
)

// FindAvailable turns FREE driver records into candidates. Drivers without a
// location are left for manual assignment; malformed locations are logged and skipped.
func FindAvailable(records []DriverRecord, log logrus.FieldLogger) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		if r.Location == nil {
			continue
		}
		p, err := types.ParseNullPoint(*r.Location)
		if err != nil {
			log.WithFields(logrus.Fields{
				"tenant_id": r.TenantID,
				"driver_id": r.ID,
			}).WithError(err).Warn("skipping driver with malformed location")
			continue
		}
		if !p.Valid {
			continue
		}
		out = append(out, Candidate{DriverID: r.ID, Name: r.Name, Location: p.Point})
	}
	return out
}

// RankByProximity returns a copy of candidates ordered by great-circle miles to
// pickup, nearest first, ties broken by driver ID. There is no radius cutoff.
func RankByProximity(pickup types.Point, candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Miles = location.HaversineMiles(ranked[i].Location, pickup)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].DriverID < ranked[j].DriverID })
	location.SortByDistance(ranked, func(c Candidate) float64 { return c.Miles })
	return ranked
}

func removeCandidate(pool []Candidate, id types.ID) []Candidate {
	for i, c := range pool {
		if c.DriverID == id {
			return append(pool[:i:i], pool[i+1:]...)
		}
	}
	return pool
}

func findCandidate(pool []Candidate, id types.ID) (Candidate, bool) {
	for _, c := range pool {
		if c.DriverID == id {
			return c, true
		}
	}
	return Candidate{}, false
}
