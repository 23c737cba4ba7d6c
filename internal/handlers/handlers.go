package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"finflow/internal/db"
	"finflow/internal/money"
	"finflow/internal/services"

	"github.com/shopspring/decimal"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// formatMoney renders an amount with the minor-unit precision of code.
func formatMoney(amount decimal.Decimal, code string) string {
	return money.Format(amount, code)
}

// respondServiceError maps service sentinels to status codes; anything else is
// reported as fallback with a 500.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrSameAccountTransfer):
		respondError(w, http.StatusBadRequest, "same_account_transfer")
	case errors.Is(err, services.ErrSubcategoryMismatch):
		respondError(w, http.StatusBadRequest, "subcategory_mismatch")
	case errors.Is(err, services.ErrInvalidPeriod):
		respondError(w, http.StatusBadRequest, "invalid_period")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, services.ErrCategoryNotFound):
		respondError(w, http.StatusNotFound, "category_not_found")
	case errors.Is(err, services.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, "transaction_not_found")
	case db.IsUniqueViolation(err):
		respondError(w, http.StatusConflict, "duplicate_request")
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
