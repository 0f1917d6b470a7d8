// README: Driver store backed by PostgreSQL. Status writes are optimistic on status_version.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxidispatch/internal/types"
)

// activeJobStatuses mirrors the job statuses that keep a driver occupied.
var activeJobStatuses = []string{"DISPATCHED", "EN_ROUTE", "ARRIVED", "POB"}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, d *Driver) error {
	row := s.db.QueryRow(ctx, `
        INSERT INTO drivers (id, tenant_id, name, status, status_version, location, location_updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at`,
		string(d.ID), string(d.TenantID), d.Name, string(d.Status), d.StatusVersion,
		d.Location.Text(), d.LocationUpdatedAt,
	)
	return row.Scan(&d.CreatedAt)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, tenant_id, name, status, status_version, location, location_updated_at, created_at
        FROM drivers
        WHERE id = $1`, string(id))

	var d Driver
	var loc sql.NullString
	var locAt sql.NullTime
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Status, &d.StatusVersion, &loc, &locAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if loc.Valid {
		// a malformed stored location reads as absent here; dispatch logs it
		d.Location, _ = types.ParseNullPoint(loc.String)
	}
	if locAt.Valid {
		t := locAt.Time
		d.LocationUpdatedAt = &t
	}
	return &d, nil
}

// UpdateStatus applies a self-reported status. Moving to FREE or OFF_DUTY is refused
// while the driver still holds an active job.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET status = $1, status_version = status_version + 1
        WHERE id = $2 AND status = $3 AND status_version = $4
          AND ($1 NOT IN ('FREE', 'OFF_DUTY') OR NOT EXISTS (
              SELECT 1 FROM jobs WHERE driver_id = $2 AND status = ANY($5)
          ))`,
		string(to), string(id), string(from), version, activeJobStatuses,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) HasActiveJob(ctx context.Context, id types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM jobs
            WHERE driver_id = $1 AND status = ANY($2)
        )`, string(id), activeJobStatuses)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateLocation stores the coordinate in its text form; status is untouched.
func (s *Store) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET location = $1, location_updated_at = $2
        WHERE id = $3`, p.String(), at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
