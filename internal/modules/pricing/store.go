// README: Pricing catalog store backed by PostgreSQL.
package pricing

import (
	"context"
	"fmt"
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

// LoadCatalog reads all pricing rows for a tenant from a single snapshot.
func (s *Store) LoadCatalog(ctx context.Context, tenantID types.ID) (*Catalog, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var cat Catalog
	tid := string(tenantID)
	if cat.Tariffs, err = listTariffs(ctx, tx, tid); err != nil {
		return nil, fmt.Errorf("tariffs: %w", err)
	}
	if cat.FixedPrices, err = listFixedPrices(ctx, tx, tid); err != nil {
		return nil, fmt.Errorf("fixed prices: %w", err)
	}
	if cat.Zones, err = listZones(ctx, tx, tid); err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	if cat.ZonePrices, err = listZonePrices(ctx, tx, tid); err != nil {
		return nil, fmt.Errorf("zone prices: %w", err)
	}
	if cat.Surcharges, err = listSurcharges(ctx, tx, tid); err != nil {
		return nil, fmt.Errorf("surcharges: %w", err)
	}
	return &cat, tx.Commit(ctx)
}

func listTariffs(ctx context.Context, tx pgx.Tx, tenantID string) ([]Tariff, error) {
	rows, err := tx.Query(ctx, `
        SELECT tenant_id, vehicle_type, base_rate, per_mile, min_fare, updated_at
        FROM pricing_rules
        WHERE tenant_id = $1
        ORDER BY vehicle_type`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(&t.TenantID, &t.VehicleType, &t.BaseRate, &t.PerMile, &t.MinFare, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func listFixedPrices(ctx context.Context, tx pgx.Tx, tenantID string) ([]FixedPrice, error) {
	rows, err := tx.Query(ctx, `
        SELECT id, tenant_id, name, pickup, dropoff, vehicle_type, price, is_reverse
        FROM fixed_prices
        WHERE tenant_id = $1
        ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FixedPrice
	for rows.Next() {
		var f FixedPrice
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Name, &f.Pickup, &f.Dropoff, &f.VehicleType, &f.Price, &f.IsReverse); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func listZones(ctx context.Context, tx pgx.Tx, tenantID string) ([]Zone, error) {
	rows, err := tx.Query(ctx, `
        SELECT id, tenant_id, name, color, polygon, created_at
        FROM zones
        WHERE tenant_id = $1
        ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Zone
	for rows.Next() {
		var z Zone
		var polygon string
		if err := rows.Scan(&z.ID, &z.TenantID, &z.Name, &z.Color, &polygon, &z.CreatedAt); err != nil {
			return nil, err
		}
		if z.Polygon, err = DecodePolygon(polygon); err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.ID, err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func listZonePrices(ctx context.Context, tx pgx.Tx, tenantID string) ([]ZonePrice, error) {
	rows, err := tx.Query(ctx, `
        SELECT id, tenant_id, from_zone_id, to_zone_id, vehicle_type, price, is_reverse
        FROM zone_prices
        WHERE tenant_id = $1
        ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ZonePrice
	for rows.Next() {
		var zp ZonePrice
		if err := rows.Scan(&zp.ID, &zp.TenantID, &zp.FromZoneID, &zp.ToZoneID, &zp.VehicleType, &zp.Price, &zp.IsReverse); err != nil {
			return nil, err
		}
		out = append(out, zp)
	}
	return out, rows.Err()
}

func listSurcharges(ctx context.Context, tx pgx.Tx, tenantID string) ([]Surcharge, error) {
	rows, err := tx.Query(ctx, `
        SELECT id, tenant_id, name, type, value, start_date, end_date, start_time, end_time, days
        FROM surcharges
        WHERE tenant_id = $1
        ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Surcharge
	for rows.Next() {
		var sc Surcharge
		var startTime, endTime *string
		var days []int16
		if err := rows.Scan(&sc.ID, &sc.TenantID, &sc.Name, &sc.Type, &sc.Value,
			&sc.StartDate, &sc.EndDate, &startTime, &endTime, &days); err != nil {
			return nil, err
		}
		if sc.StartTime, err = parseClockPtr(startTime); err != nil {
			return nil, fmt.Errorf("surcharge %s: %w", sc.ID, err)
		}
		if sc.EndTime, err = parseClockPtr(endTime); err != nil {
			return nil, fmt.Errorf("surcharge %s: %w", sc.ID, err)
		}
		for _, d := range days {
			sc.Days = append(sc.Days, time.Weekday(d))
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTariff(ctx context.Context, t *Tariff) error {
	row := s.db.QueryRow(ctx, `
        INSERT INTO pricing_rules (tenant_id, vehicle_type, base_rate, per_mile, min_fare, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (tenant_id, vehicle_type)
        DO UPDATE SET base_rate = EXCLUDED.base_rate,
                      per_mile = EXCLUDED.per_mile,
                      min_fare = EXCLUDED.min_fare,
                      updated_at = EXCLUDED.updated_at
        RETURNING updated_at`,
		string(t.TenantID), t.VehicleType, t.BaseRate, t.PerMile, t.MinFare,
	)
	return row.Scan(&t.UpdatedAt)
}

func (s *Store) CreateFixedPrice(ctx context.Context, f *FixedPrice) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO fixed_prices (id, tenant_id, name, pickup, dropoff, vehicle_type, price, is_reverse)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(f.ID), string(f.TenantID), f.Name, f.Pickup, f.Dropoff, f.VehicleType, f.Price, f.IsReverse,
	)
	return err
}

func (s *Store) CreateZone(ctx context.Context, z *Zone) error {
	polygon, err := EncodePolygon(z.Polygon)
	if err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
        INSERT INTO zones (id, tenant_id, name, color, polygon)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`,
		string(z.ID), string(z.TenantID), z.Name, z.Color, polygon,
	)
	return row.Scan(&z.CreatedAt)
}

func (s *Store) CreateZonePrice(ctx context.Context, zp *ZonePrice) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO zone_prices (id, tenant_id, from_zone_id, to_zone_id, vehicle_type, price, is_reverse)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(zp.ID), string(zp.TenantID), string(zp.FromZoneID), string(zp.ToZoneID), zp.VehicleType, zp.Price, zp.IsReverse,
	)
	return err
}

func (s *Store) CreateSurcharge(ctx context.Context, sc *Surcharge) error {
	days := make([]int16, 0, len(sc.Days))
	for _, d := range sc.Days {
		days = append(days, int16(d))
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO surcharges (id, tenant_id, name, type, value, start_date, end_date, start_time, end_time, days)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(sc.ID), string(sc.TenantID), sc.Name, string(sc.Type), sc.Value,
		sc.StartDate, sc.EndDate, clockText(sc.StartTime), clockText(sc.EndTime), days,
	)
	return err
}

// Delete removes one catalog row of the given kind.
func (s *Store) Delete(ctx context.Context, kind CatalogKind, tenantID, id types.ID) error {
	table, ok := catalogTables[kind]
	if !ok {
		return ErrBadRequest
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type CatalogKind string

const (
	KindFixedPrice CatalogKind = "fixed-prices"
	KindZone       CatalogKind = "zones"
	KindZonePrice  CatalogKind = "zone-prices"
	KindSurcharge  CatalogKind = "surcharges"
)

var catalogTables = map[CatalogKind]string{
	KindFixedPrice: "fixed_prices",
	KindZone:       "zones",
	KindZonePrice:  "zone_prices",
	KindSurcharge:  "surcharges",
}

func parseClockPtr(s *string) (*ClockTime, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	c, err := ParseClockTime(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clockText(c *ClockTime) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

