package money

import (
	"errors"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

const defaultFraction = 2

// DisplayThreshold is the smallest magnitude that survives presentation rounding.
var DisplayThreshold = decimal.New(1, -2)

// ParseAmount accepts signed decimal text with optional thousands separators.
func ParseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(input, ",", ""))
	trimmed = strings.ReplaceAll(trimmed, " ", "")
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// IsKnownCurrency reports whether code is an ISO 4217 code go-money knows.
func IsKnownCurrency(code string) bool {
	return gomoney.GetCurrency(strings.ToUpper(code)) != nil
}

// Fraction returns the number of minor-unit digits for the currency.
func Fraction(code string) int32 {
	currency := gomoney.GetCurrency(strings.ToUpper(code))
	if currency == nil {
		return defaultFraction
	}
	return int32(currency.Fraction)
}

func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Fraction(code))
}

func Format(amount decimal.Decimal, code string) string {
	return amount.StringFixed(Fraction(code))
}

// IsDisplayZero reports whether the amount renders as zero at two decimals.
func IsDisplayZero(amount decimal.Decimal) bool {
	return amount.Abs().LessThan(DisplayThreshold)
}
