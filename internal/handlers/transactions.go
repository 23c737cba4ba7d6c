package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"finflow/internal/middleware"
	"finflow/internal/models"
	"finflow/internal/money"
	"finflow/internal/services"
	"finflow/internal/store"
	"finflow/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

var errInvalidDate = errors.New("invalid date")

type createTransactionRequest struct {
	AccountID     string  `json:"account_id"`
	CategoryID    string  `json:"category_id"`
	SubcategoryID *string `json:"subcategory_id"`
	Amount        string  `json:"amount"`
	Note          string  `json:"note"`
	Date          string  `json:"date"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.AccountID == "" || req.CategoryID == "" {
		respondError(w, http.StatusBadRequest, "account_id and category_id are required")
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	created, err := h.ledger.CreateTransaction(r.Context(), services.CreateTransactionRequest{
		UserID:        userID,
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		SubcategoryID: blankToNil(req.SubcategoryID),
		Amount:        amount,
		Note:          req.Note,
		Date:          date,
	})
	if err != nil {
		respondServiceError(w, err, "create_failed")
		return
	}
	respondJSON(w, http.StatusCreated, presentTransaction(created))
}

type updateTransactionRequest struct {
	AccountID        *string `json:"account_id"`
	CategoryID       *string `json:"category_id"`
	SubcategoryID    *string `json:"subcategory_id"`
	ClearSubcategory bool    `json:"clear_subcategory"`
	Amount           *string `json:"amount"`
	Note             *string `json:"note"`
	Date             *string `json:"date"`
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	update := services.UpdateTransactionRequest{
		UserID:           userID,
		TransactionID:    chi.URLParam(r, "id"),
		AccountID:        blankToNil(req.AccountID),
		CategoryID:       blankToNil(req.CategoryID),
		SubcategoryID:    blankToNil(req.SubcategoryID),
		ClearSubcategory: req.ClearSubcategory,
		Note:             req.Note,
	}
	if req.Amount != nil {
		amount, err := money.ParseAmount(*req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		update.Amount = &amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil || date.IsZero() {
			respondError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		update.Date = &date
	}
	updated, err := h.ledger.UpdateTransaction(r.Context(), update)
	if err != nil {
		respondServiceError(w, err, "update_failed")
		return
	}
	respondJSON(w, http.StatusOK, presentTransaction(updated))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.ledger.DeleteTransaction(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "delete_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	FromAccountID  string  `json:"from_account_id"`
	ToAccountID    string  `json:"to_account_id"`
	CategoryID     string  `json:"category_id"`
	Amount         string  `json:"amount"`
	ReceivedAmount *string `json:"received_amount"`
	Note           string  `json:"note"`
	Date           string  `json:"date"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.FromAccountID == "" || req.ToAccountID == "" || req.CategoryID == "" {
		respondError(w, http.StatusBadRequest, "from_account_id, to_account_id and category_id are required")
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	var received *decimal.Decimal
	if req.ReceivedAmount != nil && strings.TrimSpace(*req.ReceivedAmount) != "" {
		value, err := money.ParseAmount(*req.ReceivedAmount)
		if err != nil || !value.IsPositive() {
			respondError(w, http.StatusBadRequest, "invalid_received_amount")
			return
		}
		received = &value
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	result, err := h.ledger.Transfer(r.Context(), services.TransferRequest{
		UserID:         userID,
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		CategoryID:     req.CategoryID,
		Amount:         amount,
		ReceivedAmount: received,
		Note:           req.Note,
		Date:           date,
	})
	if err != nil {
		respondServiceError(w, err, "transfer_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"transfer_id": result.TransferID,
		"debit":       presentTransaction(result.Debit),
		"credit":      presentTransaction(result.Credit),
	})
}

// ListTransactions pages through one period, the current month by default.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	period, err := services.ResolvePeriod(query.Get("from"), query.Get("to"), query.Get("month"), time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_period")
		return
	}
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	transactions, err := h.transactions.ListByUser(r.Context(), userID, period.Start, period.End, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(transactions))
	for _, t := range transactions {
		normalized = append(normalized, presentTransaction(t))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transaction, err := h.transactions.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "transaction_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load transaction")
		return
	}
	respondJSON(w, http.StatusOK, presentTransaction(transaction))
}

func presentTransaction(t models.Transaction) map[string]any {
	return map[string]any{
		"id":             t.ID,
		"account_id":     t.AccountID,
		"category_id":    t.CategoryID,
		"subcategory_id": t.SubcategoryID,
		"transfer_id":    t.TransferID,
		"amount":         formatMoney(t.Amount, t.Currency),
		"currency":       t.Currency,
		"exchange_rate":  t.ExchangeRate,
		"note":           t.Note,
		"created_at":     t.CreatedAt,
	}
}

// parseDate accepts RFC 3339 or a plain date, which is pinned to noon UTC.
// An empty value yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	day, err := validator.ParseISODate(raw)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return day.Add(12 * time.Hour), nil
}

func blankToNil(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
