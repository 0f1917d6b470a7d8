// README: Currency rounding helpers shared by pricing and the HTTP layer.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency applies to tenants created without one.
const DefaultCurrency = "GBP"

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"ISK": true,
	"VND": true,
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// RoundToCurrency rounds half away from zero to the currency's minor unit.
func RoundToCurrency(v decimal.Decimal, currency string) decimal.Decimal {
	return v.Round(MinorUnits(currency))
}
