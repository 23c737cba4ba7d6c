package store

import (
	"context"

	"finflow/internal/models"

	"github.com/lib/pq"
)

type PreferencesStore struct {
	db DB
}

type preferencesRow struct {
	UserID            string         `db:"user_id"`
	MainCurrency      string         `db:"main_currency"`
	EnabledCurrencies pq.StringArray `db:"enabled_currencies"`
}

func NewPreferencesStore(db DB) *PreferencesStore {
	return &PreferencesStore{db: db}
}

// Get returns ErrNotFound when the user never saved preferences.
func (s *PreferencesStore) Get(ctx context.Context, userID string) (models.UserPreferences, error) {
	var row preferencesRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, main_currency, enabled_currencies
		FROM user_preferences
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return models.UserPreferences{}, notFound(err)
	}
	return models.UserPreferences{
		UserID:            row.UserID,
		MainCurrency:      row.MainCurrency,
		EnabledCurrencies: []string(row.EnabledCurrencies),
	}, nil
}

func (s *PreferencesStore) Upsert(ctx context.Context, prefs models.UserPreferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, main_currency, enabled_currencies)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET main_currency = EXCLUDED.main_currency,
		    enabled_currencies = EXCLUDED.enabled_currencies,
		    updated_at = NOW()
	`, prefs.UserID, prefs.MainCurrency, pq.Array(prefs.EnabledCurrencies))
	return err
}
