package store

import (
	"context"
	"time"

	"finflow/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db DB
}

type CategoryTotal struct {
	CategoryID   string          `db:"category_id"`
	CategoryName string          `db:"category_name"`
	Color        string          `db:"color"`
	Total        decimal.Decimal `db:"total"`
}

type SubcategoryTotal struct {
	CategoryID      string          `db:"category_id"`
	SubcategoryID   string          `db:"subcategory_id"`
	SubcategoryName string          `db:"subcategory_name"`
	Color           string          `db:"color"`
	Total           decimal.Decimal `db:"total"`
}

const transactionColumns = `id, user_id, account_id, category_id, subcategory_id, transfer_id, amount, currency, exchange_rate, note, created_at`

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, t models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, account_id, category_id, subcategory_id, transfer_id, amount, currency, exchange_rate, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.UserID, t.AccountID, t.CategoryID, t.SubcategoryID, t.TransferID,
		t.Amount, t.Currency, t.ExchangeRate, t.Note, t.CreatedAt)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1 AND user_id = $2
	`, transactionID, userID)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return row, nil
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, userID, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, transactionID, userID)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return row, nil
}

// ListByTransfer locks and returns both legs of a transfer.
func (s *TransactionStore) ListByTransfer(ctx context.Context, tx Selecter, userID, transferID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE transfer_id = $1 AND user_id = $2
		ORDER BY id
		FOR UPDATE
	`, transferID, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5
	`, userID, start, end, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) Update(ctx context.Context, tx Execer, t models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = $1, category_id = $2, subcategory_id = $3, amount = $4,
		    currency = $5, note = $6, created_at = $7
		WHERE id = $8 AND user_id = $9
	`, t.AccountID, t.CategoryID, t.SubcategoryID, t.Amount, t.Currency, t.Note, t.CreatedAt, t.ID, t.UserID)
	return err
}

func (s *TransactionStore) Delete(ctx context.Context, tx Execer, userID, transactionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, transactionID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) SumByAccount(ctx context.Context, tx Getter, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1
	`, accountID)
	return sum, err
}

// CategoryTotals groups the period's transactions by category, skipping
// categories hidden from charts. Rows come back smallest total first.
func (s *TransactionStore) CategoryTotals(ctx context.Context, userID string, start, end time.Time) ([]CategoryTotal, error) {
	var rows []CategoryTotal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id AS category_id, c.name AS category_name, c.color, SUM(t.amount) AS total
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1
		  AND t.created_at >= $2 AND t.created_at < $3
		  AND c.include_in_chart IS NOT FALSE
		GROUP BY c.id, c.name, c.color
		ORDER BY total ASC, c.name
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) SubcategoryTotals(ctx context.Context, userID string, categoryIDs []string, start, end time.Time) ([]SubcategoryTotal, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	var rows []SubcategoryTotal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.category_id, sc.id AS subcategory_id, sc.name AS subcategory_name, sc.color, SUM(t.amount) AS total
		FROM transactions t
		JOIN subcategories sc ON sc.id = t.subcategory_id
		WHERE t.user_id = $1
		  AND t.category_id = ANY($2)
		  AND t.created_at >= $3 AND t.created_at < $4
		  AND sc.include_in_chart IS NOT FALSE
		GROUP BY t.category_id, sc.id, sc.name, sc.color
		ORDER BY total ASC, sc.name
	`, userID, pq.Array(categoryIDs), start, end)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
