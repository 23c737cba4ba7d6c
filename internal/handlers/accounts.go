package handlers

import (
	"errors"
	"net/http"

	"finflow/internal/middleware"
	"finflow/internal/models"
	"finflow/internal/services"
	"finflow/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.accounts.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	normalized := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		normalized = append(normalized, presentAccount(account))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.accounts.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "account_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load account")
		return
	}
	respondJSON(w, http.StatusOK, presentAccount(account))
}

func presentAccount(account models.Account) map[string]any {
	return map[string]any{
		"id":              account.ID,
		"name":            account.Name,
		"currency":        account.DefaultCurrency,
		"initial_balance": formatMoney(account.InitialBalance, account.DefaultCurrency),
		"balance":         formatMoney(account.Balance, account.DefaultCurrency),
		"is_available":    account.IsAvailable,
		"created_at":      account.CreatedAt,
	}
}

// CheckIntegrity reports stored against derived balances without changing them.
func (h *Handler) CheckIntegrity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	drifts, err := h.ledger.CheckIntegrity(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to check integrity")
		return
	}
	respondJSON(w, http.StatusOK, presentDrifts(drifts))
}

func (h *Handler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	results, err := h.ledger.RecomputeAll(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "recompute_failed")
		return
	}
	normalized := make([]map[string]any, 0, len(results))
	for _, result := range results {
		normalized = append(normalized, presentReconciliation(result))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) RecomputeAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.ledger.RecomputeAccount(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "recompute_failed")
		return
	}
	respondJSON(w, http.StatusOK, presentReconciliation(result))
}

func presentDrifts(drifts []store.AccountDrift) []map[string]any {
	normalized := make([]map[string]any, 0, len(drifts))
	for _, drift := range drifts {
		normalized = append(normalized, map[string]any{
			"account_id":         drift.AccountID,
			"name":               drift.Name,
			"currency":           drift.Currency,
			"stored_balance":     formatMoney(drift.StoredBalance, drift.Currency),
			"calculated_balance": formatMoney(drift.CalculatedBalance, drift.Currency),
			"difference":         formatMoney(drift.Difference, drift.Currency),
			"consistent":         drift.Difference.IsZero(),
		})
	}
	return normalized
}

func presentReconciliation(result services.Reconciliation) map[string]any {
	return map[string]any{
		"account_id": result.AccountID,
		"currency":   result.Currency,
		"previous":   formatMoney(result.Previous, result.Currency),
		"recomputed": formatMoney(result.Recomputed, result.Currency),
		"drift":      formatMoney(result.Drift, result.Currency),
		"changed":    result.Changed(),
	}
}
