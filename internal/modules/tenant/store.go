// README: Tenant store backed by PostgreSQL.
package tenant

import (
	"context"
	"database/sql"
	"errors"

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

const tenantColumns = `id, name, home_location, auto_dispatch, zone_pricing,
       currency, timezone, surcharge_fixed_prices, created_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Tenant, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, string(id))
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Store) ListAutoDispatch(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE auto_dispatch ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSettings(ctx context.Context, t *Tenant) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE tenants
        SET name = $2, home_location = $3, auto_dispatch = $4, zone_pricing = $5,
            currency = $6, timezone = $7, surcharge_fixed_prices = $8
        WHERE id = $1`,
		string(t.ID), t.Name, t.Home.Text(), t.AutoDispatch, t.ZonePricing,
		t.Currency, t.Timezone, t.SurchargeFixedPrices,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var home sql.NullString
	err := row.Scan(&t.ID, &t.Name, &home, &t.AutoDispatch, &t.ZonePricing,
		&t.Currency, &t.Timezone, &t.SurchargeFixedPrices, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	// a corrupt home location only loses the optional coordinate
	if home.Valid {
		if p, err := types.ParseNullPoint(home.String); err == nil {
			t.Home = p
		}
	}
	if t.Currency == "" {
		t.Currency = types.DefaultCurrency
	}
	return &t, nil
}
