package valuation

import (
	"github.com/shopspring/decimal"
)

// currencyExponents lists minor-unit exponents that differ from the default
// of two decimal places.
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// RoundMoney rounds an amount to the currency's minor unit using banker's
// rounding. This is the only place amounts are rounded: every computation
// upstream runs at full precision.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	exponent, ok := currencyExponents[currency]
	if !ok {
		exponent = 2
	}

	return amount.RoundBank(exponent)
}

// FormatMoney renders an amount rounded to the currency's minor unit, e.g.
// "1234.50 USD".
func FormatMoney(amount decimal.Decimal, currency string) string {
	exponent, ok := currencyExponents[currency]
	if !ok {
		exponent = 2
	}

	return amount.RoundBank(exponent).StringFixed(exponent) + " " + currency
}
