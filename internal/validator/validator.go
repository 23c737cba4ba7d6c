package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"finflow/internal/money"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
	monthRegex    = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2]))?$`)
)

// ValidateCurrency accepts a three-letter ISO 4217 code known to go-money.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) || !money.IsKnownCurrency(code) {
		return ErrInvalidCurrency
	}
	return nil
}

// ValidateMonth accepts "YYYY" or "YYYY-MM".
func ValidateMonth(value string) error {
	if !monthRegex.MatchString(value) {
		return ErrInvalidMonth
	}
	return nil
}

func ParseISODate(value string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return parsed, nil
}
