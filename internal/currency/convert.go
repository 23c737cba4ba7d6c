// Package currency converts amounts between currencies by triangulating
// through the base currency of a rates.Table.
package currency

import (
	"strings"

	"finflow/internal/rates"

	"github.com/shopspring/decimal"
)

// Convert returns amount expressed in to. When either currency is missing from
// the table the amount is returned unchanged.
func Convert(amount decimal.Decimal, from, to string, table rates.Table) decimal.Decimal {
	converted, _ := ConvertChecked(amount, from, to, table)
	return converted
}

// ConvertChecked is Convert that also reports whether a conversion happened
// (or was unnecessary). false means the degraded pass-through path was taken.
func ConvertChecked(amount decimal.Decimal, from, to string, table rates.Table) (decimal.Decimal, bool) {
	if strings.EqualFold(from, to) {
		return amount, true
	}
	fromRate, ok := table.Lookup(from)
	if !ok {
		return amount, false
	}
	toRate, ok := table.Lookup(to)
	if !ok {
		return amount, false
	}
	return amount.Div(fromRate).Mul(toRate), true
}

// Rate is the display rate: units of to per one unit of from. Unknown
// currencies yield 1.
func Rate(from, to string, table rates.Table) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if strings.EqualFold(from, to) {
		return one
	}
	fromRate, ok := table.Lookup(from)
	if !ok {
		return one
	}
	toRate, ok := table.Lookup(to)
	if !ok {
		return one
	}
	return toRate.Div(fromRate)
}

func Supports(table rates.Table, codes ...string) bool {
	for _, code := range codes {
		if !table.Has(code) {
			return false
		}
	}
	return true
}
