package store

import (
	"context"

	"finflow/internal/models"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

// AccountDrift compares the cached balance with the value derived from the
// ledger: initial_balance plus the sum of the account's transactions.
type AccountDrift struct {
	AccountID         string          `db:"account_id" json:"account_id"`
	UserID            string          `db:"user_id" json:"user_id"`
	Name              string          `db:"name" json:"name"`
	Currency          string          `db:"currency" json:"currency"`
	StoredBalance     decimal.Decimal `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance decimal.Decimal `db:"calculated_balance" json:"calculated_balance"`
	Difference        decimal.Decimal `db:"difference" json:"difference"`
}

const accountColumns = `id, user_id, name, default_currency, initial_balance, balance, is_available, created_at`

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) ListAll(ctx context.Context) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY user_id, name
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetByID(ctx context.Context, userID, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, accountID, userID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

// AdjustBalance applies delta in a single statement so concurrent writers
// never lose an update. It returns the balance after the change.
func (s *AccountStore) AdjustBalance(ctx context.Context, tx Getter, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, delta, accountID)
	if err != nil {
		return decimal.Zero, notFound(err)
	}
	return balance, nil
}

func (s *AccountStore) SetBalance(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

// Drift reports every account of userID, or every account when userID is empty.
func (s *AccountStore) Drift(ctx context.Context, userID string) ([]AccountDrift, error) {
	var rows []AccountDrift
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id,
		       a.user_id,
		       a.name,
		       a.default_currency AS currency,
		       a.balance AS stored_balance,
		       a.initial_balance + COALESCE(SUM(t.amount), 0) AS calculated_balance,
		       a.balance - (a.initial_balance + COALESCE(SUM(t.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE ($1 = '' OR a.user_id = $1)
		GROUP BY a.id, a.user_id, a.name, a.default_currency, a.balance, a.initial_balance
		ORDER BY a.user_id, a.name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
