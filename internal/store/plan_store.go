package store

import (
	"context"

	"github.com/shopspring/decimal"
)

type PlanStore struct {
	db DB
}

// PlanRow is a monthly plan joined to its category and optional subcategory.
type PlanRow struct {
	ID              string          `db:"id"`
	Month           string          `db:"month"`
	CategoryID      string          `db:"category_id"`
	CategoryName    string          `db:"category_name"`
	SubcategoryID   *string         `db:"subcategory_id"`
	SubcategoryName *string         `db:"subcategory_name"`
	Amount          decimal.Decimal `db:"amount"`
}

func NewPlanStore(db DB) *PlanStore {
	return &PlanStore{db: db}
}

// ListForMonth returns plans keyed exactly by month ("YYYY-MM").
func (s *PlanStore) ListForMonth(ctx context.Context, userID, month string) ([]PlanRow, error) {
	return s.list(ctx, `p.month = $2`, userID, month)
}

// ListForYear returns plans for every month of year ("YYYY").
func (s *PlanStore) ListForYear(ctx context.Context, userID, year string) ([]PlanRow, error) {
	return s.list(ctx, `p.month LIKE $2`, userID, year+"-%")
}

func (s *PlanStore) list(ctx context.Context, filter, userID, key string) ([]PlanRow, error) {
	var rows []PlanRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id, p.month, p.category_id, c.name AS category_name,
		       p.subcategory_id, sc.name AS subcategory_name, p.amount
		FROM monthly_plans p
		JOIN categories c ON c.id = p.category_id
		LEFT JOIN subcategories sc ON sc.id = p.subcategory_id
		WHERE p.user_id = $1 AND `+filter+`
		ORDER BY c.name, p.month
	`, userID, key)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
