package store

import (
	"context"

	"finflow/internal/models"
)

type CategoryStore struct {
	db DB
}

func NewCategoryStore(db DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	var rows []models.Category
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, color, default_account_id, include_in_chart
		FROM categories
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CategoryStore) ListSubcategories(ctx context.Context, userID string) ([]models.Subcategory, error) {
	var rows []models.Subcategory
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, category_id, user_id, name, color, include_in_chart
		FROM subcategories
		WHERE user_id = $1
		ORDER BY category_id, name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CategoryStore) GetCategory(ctx context.Context, tx Getter, userID, categoryID string) (models.Category, error) {
	var row models.Category
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, name, color, default_account_id, include_in_chart
		FROM categories
		WHERE id = $1 AND user_id = $2
	`, categoryID, userID)
	if err != nil {
		return models.Category{}, notFound(err)
	}
	return row, nil
}

func (s *CategoryStore) GetSubcategory(ctx context.Context, tx Getter, userID, subcategoryID string) (models.Subcategory, error) {
	var row models.Subcategory
	err := tx.GetContext(ctx, &row, `
		SELECT id, category_id, user_id, name, color, include_in_chart
		FROM subcategories
		WHERE id = $1 AND user_id = $2
	`, subcategoryID, userID)
	if err != nil {
		return models.Subcategory{}, notFound(err)
	}
	return row, nil
}
