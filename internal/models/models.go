package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Name            string          `db:"name" json:"name"`
	DefaultCurrency string          `db:"default_currency" json:"default_currency"`
	InitialBalance  decimal.Decimal `db:"initial_balance" json:"initial_balance"`
	Balance         decimal.Decimal `db:"balance" json:"balance"`
	IsAvailable     bool            `db:"is_available" json:"is_available"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type Category struct {
	ID               string  `db:"id" json:"id"`
	UserID           string  `db:"user_id" json:"user_id"`
	Name             string  `db:"name" json:"name"`
	Color            string  `db:"color" json:"color"`
	DefaultAccountID *string `db:"default_account_id" json:"default_account_id,omitempty"`
	IncludeInChart   *bool   `db:"include_in_chart" json:"include_in_chart,omitempty"`
}

// Charted treats a missing flag as included.
func (c Category) Charted() bool {
	return c.IncludeInChart == nil || *c.IncludeInChart
}

type Subcategory struct {
	ID             string `db:"id" json:"id"`
	CategoryID     string `db:"category_id" json:"category_id"`
	UserID         string `db:"user_id" json:"user_id"`
	Name           string `db:"name" json:"name"`
	Color          string `db:"color" json:"color"`
	IncludeInChart *bool  `db:"include_in_chart" json:"include_in_chart,omitempty"`
}

type Transaction struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	CategoryID    string          `db:"category_id" json:"category_id"`
	SubcategoryID *string         `db:"subcategory_id" json:"subcategory_id,omitempty"`
	TransferID    *string         `db:"transfer_id" json:"transfer_id,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	ExchangeRate  RateSnapshot    `db:"exchange_rate" json:"exchange_rate,omitempty"`
	Note          string          `db:"note" json:"note"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type MonthlyPlan struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	CategoryID    string          `db:"category_id" json:"category_id"`
	SubcategoryID *string         `db:"subcategory_id" json:"subcategory_id,omitempty"`
	Month         string          `db:"month" json:"month"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	ReminderDate  *time.Time      `db:"reminder_date" json:"reminder_date,omitempty"`
}

type UserPreferences struct {
	UserID            string   `db:"user_id" json:"user_id"`
	MainCurrency      string   `db:"main_currency" json:"main_currency"`
	EnabledCurrencies []string `db:"-" json:"enabled_currencies"`
}

// RateSnapshot is the rate table captured when a transaction was written,
// stored as JSONB. A nil snapshot is stored as an empty object since the
// column is NOT NULL.
type RateSnapshot map[string]decimal.Decimal

func (s RateSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]decimal.Decimal(s))
}

func (s *RateSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*map[string]decimal.Decimal)(s))
	case string:
		return json.Unmarshal([]byte(v), (*map[string]decimal.Decimal)(s))
	default:
		return errors.New("unsupported exchange_rate column type")
	}
}
