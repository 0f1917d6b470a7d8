// README: Tenant service: settings lookup and updates.
package tenant

import (
	"context"
	"errors"
	"time"

	"taxidispatch/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Tenant, error)
	ListAutoDispatch(ctx context.Context) ([]Tenant, error)
	UpdateSettings(ctx context.Context, t *Tenant) error
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Tenant, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListAutoDispatch(ctx context.Context) ([]Tenant, error) {
	return s.store.ListAutoDispatch(ctx)
}

type SettingsCommand struct {
	TenantID             types.ID
	Name                 *string
	Home                 *types.NullPoint
	AutoDispatch         *bool
	ZonePricing          *bool
	Currency             *string
	Timezone             *string
	SurchargeFixedPrices *bool
}

// UpdateSettings applies only the fields set on cmd.
func (s *Service) UpdateSettings(ctx context.Context, cmd SettingsCommand) (*Tenant, error) {
	t, err := s.Get(ctx, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	if cmd.Name != nil {
		if *cmd.Name == "" {
			return nil, ErrBadRequest
		}
		t.Name = *cmd.Name
	}
	if cmd.Home != nil {
		t.Home = *cmd.Home
	}
	if cmd.AutoDispatch != nil {
		t.AutoDispatch = *cmd.AutoDispatch
	}
	if cmd.ZonePricing != nil {
		t.ZonePricing = *cmd.ZonePricing
	}
	if cmd.Currency != nil {
		if len(*cmd.Currency) != 3 {
			return nil, ErrBadRequest
		}
		t.Currency = *cmd.Currency
	}
	if cmd.Timezone != nil {
		if _, err := time.LoadLocation(*cmd.Timezone); err != nil {
			return nil, ErrBadRequest
		}
		t.Timezone = *cmd.Timezone
	}
	if cmd.SurchargeFixedPrices != nil {
		t.SurchargeFixedPrices = *cmd.SurchargeFixedPrices
	}
	if err := s.store.UpdateSettings(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
