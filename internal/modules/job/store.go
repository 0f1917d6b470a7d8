// README: Job store backed by PostgreSQL. Status changes and driver release share one transaction.
package job

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

// Create inserts jobs, typically an outbound and its return leg, atomically.
func (s *Store) Create(ctx context.Context, jobs ...*Job) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, j := range jobs {
		_, err := tx.Exec(ctx, `
            INSERT INTO jobs (
                id, tenant_id, pickup, dropoff, vias, pickup_location, dropoff_location,
                vehicle_type, pickup_time, fare, is_fixed_price, is_wait_and_return,
                waiting_minutes, status, status_version, pre_assigned_driver_id,
                passenger_name, passenger_phone, notes, created_at
            ) VALUES (
                $1, $2, $3, $4, $5, $6, $7,
                $8, $9, $10, $11, $12,
                $13, $14, $15, $16,
                $17, $18, $19, $20
            )`,
			string(j.ID), string(j.TenantID), j.Pickup, j.Dropoff, nonNilStrings(j.Vias),
			j.PickupCoord.Text(), j.DropoffCoord.Text(),
			j.VehicleType, j.PickupTime, j.Fare, j.IsFixedPrice, j.IsWaitAndReturn,
			int(j.WaitingTime/time.Minute), string(j.Status), j.StatusVersion, toStringPtr(j.PreAssignedDriverID),
			j.PassengerName, j.PassengerPhone, j.Notes, j.CreatedAt,
		)
		if err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, &Event{
			JobID:      j.ID,
			FromStatus: StatusNone,
			ToStatus:   j.Status,
			ActorType:  "booking",
			CreatedAt:  j.CreatedAt,
		}); err != nil {
			return err
		}
	}

	// return links are set after both rows exist
	for _, j := range jobs {
		if j.ReturnJobID == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE jobs SET return_job_id = $1 WHERE id = $2`,
			string(*j.ReturnJobID), string(j.ID)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const jobColumns = `id, tenant_id, pickup, dropoff, vias, pickup_location, dropoff_location,
       vehicle_type, pickup_time, fare, is_fixed_price, is_wait_and_return,
       waiting_minutes, return_job_id, status, status_version, driver_id, pre_assigned_driver_id,
       passenger_name, passenger_phone, notes,
       created_at, dispatched_at, completed_at, cancelled_at, cancel_reason`

func (s *Store) Get(ctx context.Context, id types.ID) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, string(id))
	j, err := ScanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

type ListFilter struct {
	TenantID types.ID
	Status   Status
	From     *time.Time
	To       *time.Time
	Limit    int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var status *string
	if f.Status != "" {
		v := string(f.Status)
		status = &v
	}
	rows, err := s.db.Query(ctx, `
        SELECT `+jobColumns+`
        FROM jobs
        WHERE tenant_id = $1
          AND ($2::text IS NULL OR status = $2)
          AND ($3::timestamptz IS NULL OR pickup_time >= $3)
          AND ($4::timestamptz IS NULL OR pickup_time <= $4)
        ORDER BY pickup_time, id
        LIMIT $5`,
		string(f.TenantID), status, f.From, f.To, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := ScanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

type Transition struct {
	Job       *Job
	To        Status
	ActorType string
	ActorID   *types.ID
	Reason    string
}

// Transition moves a job from its loaded status/version to t.To. The driver follows
// the job: POB on pick-up, FREE once it holds no other active job. A stale version
// yields ErrConflict.
func (s *Store) Transition(ctx context.Context, t Transition) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var reason *string
	if t.Reason != "" {
		reason = &t.Reason
	}
	tag, err := tx.Exec(ctx, `
        UPDATE jobs
        SET status = $1,
            status_version = status_version + 1,
            driver_id = CASE WHEN $1 = 'UNASSIGNED' THEN NULL ELSE driver_id END,
            dispatched_at = CASE WHEN $1 = 'UNASSIGNED' THEN NULL ELSE dispatched_at END,
            completed_at = CASE WHEN $1 = 'COMPLETED' THEN NOW() ELSE completed_at END,
            cancelled_at = CASE WHEN $1 IN ('CANCELLED', 'NO_SHOW') THEN NOW() ELSE cancelled_at END,
            cancel_reason = COALESCE($2, cancel_reason)
        WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(t.To), reason, string(t.Job.ID), string(t.Job.Status), t.Job.StatusVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	if d := t.Job.DriverID; d != nil {
		switch {
		case t.To == StatusPOB:
			_, err = tx.Exec(ctx, `
                UPDATE drivers
                SET status = 'POB', status_version = status_version + 1
                WHERE id = $1 AND status = 'BUSY'`, string(*d))
		case IsTerminal(t.To) || t.To == StatusUnassigned:
			_, err = tx.Exec(ctx, `
                UPDATE drivers
                SET status = 'FREE', status_version = status_version + 1
                WHERE id = $1
                  AND status IN ('BUSY', 'POB')
                  AND NOT EXISTS (
                      SELECT 1 FROM jobs
                      WHERE driver_id = $1 AND status = ANY($2)
                  )`, string(*d), ActiveStatuses)
		}
		if err != nil {
			return err
		}
	}

	if err := appendEvent(ctx, tx, &Event{
		JobID:      t.Job.ID,
		FromStatus: t.Job.Status,
		ToStatus:   t.To,
		ActorType:  t.ActorType,
		ActorID:    t.ActorID,
		DriverID:   t.Job.DriverID,
		CreatedAt:  time.Now(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Events(ctx context.Context, jobID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, job_id, from_status, to_status, actor_type, actor_id, driver_id, created_at
        FROM job_events
        WHERE job_id = $1
        ORDER BY id`, string(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID, driverID sql.NullString
		if err := rows.Scan(&e.ID, &e.JobID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &driverID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actorID)
		e.DriverID = toIDPtr(driverID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ScanJob reads a row selected with the jobs column list. Unparsable coordinates
// are treated as absent.
func ScanJob(row pgx.Row) (*Job, error) {
	var j Job
	var pickupLoc, dropoffLoc, returnID, driverID, preAssigned, cancelReason sql.NullString
	var waitingMinutes int
	var dispatchedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.TenantID, &j.Pickup, &j.Dropoff, &j.Vias, &pickupLoc, &dropoffLoc,
		&j.VehicleType, &j.PickupTime, &j.Fare, &j.IsFixedPrice, &j.IsWaitAndReturn,
		&waitingMinutes, &returnID, &j.Status, &j.StatusVersion, &driverID, &preAssigned,
		&j.PassengerName, &j.PassengerPhone, &j.Notes,
		&j.CreatedAt, &dispatchedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if err != nil {
		return nil, err
	}

	if pickupLoc.Valid {
		j.PickupCoord, _ = types.ParseNullPoint(pickupLoc.String)
	}
	if dropoffLoc.Valid {
		j.DropoffCoord, _ = types.ParseNullPoint(dropoffLoc.String)
	}
	j.WaitingTime = time.Duration(waitingMinutes) * time.Minute
	j.ReturnJobID = toIDPtr(returnID)
	j.DriverID = toIDPtr(driverID)
	j.PreAssignedDriverID = toIDPtr(preAssigned)
	j.DispatchedAt = toTimePtr(dispatchedAt)
	j.CompletedAt = toTimePtr(completedAt)
	j.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		j.CancelReason = &cancelReason.String
	}
	return &j, nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO job_events (
            job_id, from_status, to_status, actor_type, actor_id, driver_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.JobID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		toStringPtr(e.DriverID),
		e.CreatedAt,
	)
	return err
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid || v.String == "" {
		return nil
	}
	id := types.ID(v.String)
	return &id
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
