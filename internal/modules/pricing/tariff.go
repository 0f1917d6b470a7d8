package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ResolveTariff finds the tariff for vehicleType, falling back to the fallback class.
// ErrInvalidTariff is returned only when neither exists.
func ResolveTariff(tariffs []Tariff, vehicleType, fallback string) (t Tariff, fellBack bool, err error) {
	if t, ok := findTariff(tariffs, vehicleType); ok {
		return t, false, nil
	}
	if t, ok := findTariff(tariffs, fallback); ok {
		return t, true, nil
	}
	return Tariff{}, false, fmt.Errorf("%w: no rate for %q or %q", ErrInvalidTariff, vehicleType, fallback)
}

func findTariff(tariffs []Tariff, vehicleType string) (Tariff, bool) {
	vehicleType = strings.TrimSpace(vehicleType)
	if vehicleType == "" {
		return Tariff{}, false
	}
	for _, t := range tariffs {
		if strings.EqualFold(t.VehicleType, vehicleType) {
			return t, true
		}
	}
	return Tariff{}, false
}

// Fare is BaseRate + PerMile*miles, never below MinFare.
func (t Tariff) Fare(miles float64) decimal.Decimal {
	if miles < 0 {
		miles = 0
	}
	fare := t.BaseRate.Add(t.PerMile.Mul(decimal.NewFromFloat(miles)))
	if fare.LessThan(t.MinFare) {
		return t.MinFare
	}
	return fare
}

func (t Tariff) Validate() error {
	if strings.TrimSpace(t.VehicleType) == "" {
		return fmt.Errorf("%w: vehicle type required", ErrBadRequest)
	}
	if t.BaseRate.IsNegative() || t.PerMile.IsNegative() || t.MinFare.IsNegative() {
		return fmt.Errorf("%w: rates must not be negative", ErrBadRequest)
	}
	return nil
}
