package rates

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Table maps currency codes to their rate relative to Base (Base itself is 1).
type Table struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

func (t Table) Lookup(code string) (decimal.Decimal, bool) {
	rate, ok := t.Rates[strings.ToUpper(code)]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

func (t Table) Has(code string) bool {
	_, ok := t.Lookup(code)
	return ok
}

// Snapshot copies the rate map so it can be stored with a transaction.
func (t Table) Snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.Rates))
	for code, rate := range t.Rates {
		out[code] = rate
	}
	return out
}

var fallbackRates = map[string]string{
	"USD": "1",
	"EUR": "0.92",
	"GBP": "0.79",
	"AMD": "387",
	"RUB": "92",
	"GEL": "2.7",
	"UAH": "41",
	"KZT": "480",
	"CHF": "0.88",
	"JPY": "150",
	"CNY": "7.2",
	"TRY": "34",
	"AED": "3.6725",
	"CAD": "1.37",
}

// Fallback returns the built-in table expressed against base. Codes are
// re-based through USD when base is not USD.
func Fallback(base string) Table {
	base = strings.ToUpper(base)
	table := Table{Base: base, Rates: make(map[string]decimal.Decimal, len(fallbackRates)+1)}
	divisor := decimal.NewFromInt(1)
	if raw, ok := fallbackRates[base]; ok {
		divisor = decimal.RequireFromString(raw)
	}
	for code, raw := range fallbackRates {
		table.Rates[code] = decimal.RequireFromString(raw).Div(divisor)
	}
	table.Rates[base] = decimal.NewFromInt(1)
	return table
}
