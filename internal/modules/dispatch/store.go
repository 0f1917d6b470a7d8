// README: Dispatch store backed by PostgreSQL. Assign is the only writer that marks a driver BUSY.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxidispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// DueJobs lists unassigned jobs with pickup at or before until, earliest first.
func (s *Store) DueJobs(ctx context.Context, tenantID types.ID, until time.Time) ([]DueJob, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, tenant_id, pickup, pickup_location, pickup_time, vehicle_type, pre_assigned_driver_id
        FROM jobs
        WHERE tenant_id = $1
          AND status IN ('PENDING', 'UNASSIGNED')
          AND driver_id IS NULL
          AND pickup_time <= $2
        ORDER BY pickup_time, id`, string(tenantID), until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueJob
	for rows.Next() {
		var j DueJob
		var loc, preAssigned sql.NullString
		if err := rows.Scan(&j.ID, &j.TenantID, &j.Pickup, &loc, &j.PickupTime, &j.VehicleType, &preAssigned); err != nil {
			return nil, err
		}
		if loc.Valid {
			// unparsable pickup coordinates fall back to geocoding the address
			j.PickupCoord, _ = types.ParseNullPoint(loc.String)
		}
		if preAssigned.Valid && preAssigned.String != "" {
			id := types.ID(preAssigned.String)
			j.PreAssignedDriverID = &id
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) FreeDrivers(ctx context.Context, tenantID types.ID) ([]DriverRecord, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, tenant_id, name, location
        FROM drivers
        WHERE tenant_id = $1 AND status = 'FREE'
        ORDER BY id`, string(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriverRecord
	for rows.Next() {
		var d DriverRecord
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Location); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetPickupCoord stores a geocoded pickup so later passes skip the lookup.
func (s *Store) SetPickupCoord(ctx context.Context, jobID types.ID, p types.Point) error {
	_, err := s.db.Exec(ctx, `
        UPDATE jobs SET pickup_location = $1
        WHERE id = $2 AND pickup_location IS NULL`, p.String(), string(jobID))
	return err
}

// Assign flips the job to DISPATCHED and the driver to BUSY in one transaction and
// returns the job's tenant. The job row is locked first, matching the order used by
// job status transitions.
func (s *Store) Assign(ctx context.Context, p AssignParams) (types.ID, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var tenantID, status string
	var currentDriver sql.NullString
	err = tx.QueryRow(ctx, `
        SELECT tenant_id, status, driver_id FROM jobs WHERE id = $1 FOR UPDATE`,
		string(p.JobID),
	).Scan(&tenantID, &status, &currentDriver)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if (status != "PENDING" && status != "UNASSIGNED") || currentDriver.Valid {
		return "", ErrJobUnavailable
	}

	tag, err := tx.Exec(ctx, `
        UPDATE drivers
        SET status = 'BUSY', status_version = status_version + 1
        WHERE id = $1 AND tenant_id = $2 AND status = 'FREE'`,
		string(p.DriverID), tenantID,
	)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() != 1 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE id = $1 AND tenant_id = $2)`,
			string(p.DriverID), tenantID).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return "", ErrNotFound
		}
		return "", ErrDriverUnavailable
	}

	tag, err = tx.Exec(ctx, `
        UPDATE jobs
        SET status = 'DISPATCHED',
            status_version = status_version + 1,
            driver_id = $1,
            dispatched_at = NOW()
        WHERE id = $2 AND status IN ('PENDING', 'UNASSIGNED') AND driver_id IS NULL`,
		string(p.DriverID), string(p.JobID),
	)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() != 1 {
		return "", ErrJobUnavailable
	}

	var actorID *string
	if p.ActorID != nil {
		v := string(*p.ActorID)
		actorID = &v
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO job_events (job_id, from_status, to_status, actor_type, actor_id, driver_id, created_at)
        VALUES ($1, $2, 'DISPATCHED', $3, $4, $5, NOW())`,
		string(p.JobID), status, p.ActorType, actorID, string(p.DriverID),
	); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return types.ID(tenantID), nil
}
