// README: Driver service: status and location reports.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid driver status transition")
	ErrConflict     = errors.New("driver state conflict")
	ErrHasActiveJob = errors.New("driver has an active job")
	ErrNotFound     = errors.New("driver not found")
	ErrBadRequest   = errors.New("bad request")
)

type Repository interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	HasActiveJob(ctx context.Context, id types.ID) (bool, error)
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

type Service struct {
	store Repository
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(store Repository, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

type RegisterCommand struct {
	// ID is the driver's auth uid; a new ID is issued when empty.
	ID       types.ID
	TenantID types.ID
	Name     string
	Location types.NullPoint
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	if cmd.TenantID == "" || cmd.Name == "" {
		return nil, ErrBadRequest
	}
	id := cmd.ID
	if id == "" {
		id = types.NewID()
	}
	d := &Driver{
		ID:       id,
		TenantID: cmd.TenantID,
		Name:     cmd.Name,
		Status:   StatusOffDuty,
		Location: cmd.Location,
	}
	if cmd.Location.Valid {
		now := s.now()
		d.LocationUpdatedAt = &now
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

type ReportStatusCommand struct {
	DriverID types.ID
	Status   Status
	// ExpectedVersion, when set, is the status_version the driver's app last saw.
	ExpectedVersion *int
}

// ReportStatus applies a driver's own status change. A concurrent assignment bumps
// status_version, so the losing write returns ErrConflict.
func (s *Service) ReportStatus(ctx context.Context, cmd ReportStatusCommand) (*Driver, error) {
	if !ValidStatus(cmd.Status) {
		return nil, fmt.Errorf("%w: status %q", ErrBadRequest, cmd.Status)
	}
	d, err := s.store.Get(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	version := d.StatusVersion
	if cmd.ExpectedVersion != nil {
		if *cmd.ExpectedVersion != d.StatusVersion {
			return nil, ErrConflict
		}
		version = *cmd.ExpectedVersion
	}
	if d.Status == cmd.Status {
		return d, nil
	}
	if !CanReport(d.Status, cmd.Status) {
		return nil, ErrInvalidState
	}
	if cmd.Status == StatusFree || cmd.Status == StatusOffDuty {
		active, err := s.store.HasActiveJob(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, ErrHasActiveJob
		}
	}

	ok, err := s.store.UpdateStatus(ctx, d.ID, d.Status, cmd.Status, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.log.WithFields(logrus.Fields{
		"tenant_id": d.TenantID,
		"driver_id": d.ID,
		"from":      d.Status,
		"to":        cmd.Status,
	}).Info("driver status reported")

	d.Status = cmd.Status
	d.StatusVersion = version + 1
	return d, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if id == "" {
		return ErrBadRequest
	}
	if !p.InRange() {
		return types.ErrMalformedLocation
	}
	return s.store.UpdateLocation(ctx, id, p, s.now())
}
