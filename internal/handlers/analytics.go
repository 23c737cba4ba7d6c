package handlers

import (
	"net/http"

	"finflow/internal/middleware"
	"finflow/internal/services"
)

type accountBalanceResponse struct {
	AccountID   string `json:"accountId"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	Balance     string `json:"balance"`
	Converted   string `json:"convertedBalance"`
	IsAvailable bool   `json:"isAvailable"`
}

type subcategoryTotalResponse struct {
	SubcategoryID string `json:"subcategoryId"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	Total         string `json:"total"`
}

type categoryTotalResponse struct {
	CategoryID    string                     `json:"categoryId"`
	Name          string                     `json:"name"`
	Color         string                     `json:"color"`
	Total         string                     `json:"total"`
	Subcategories []subcategoryTotalResponse `json:"subcategories"`
}

type planLineResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Planned string `json:"planned"`
	Spent   string `json:"spent"`
	Left    string `json:"left"`
	IsOver  bool   `json:"isOver"`
}

type plannedVsSpentResponse struct {
	planLineResponse
	Subcategories []planLineResponse `json:"subcategories"`
}

type analyticsResponse struct {
	AccountBalances  []accountBalanceResponse `json:"accountBalances"`
	TotalBalance     string                   `json:"totalBalance"`
	TotalAvailable   string                   `json:"totalAvailable"`
	CategoryTotals   []categoryTotalResponse  `json:"categoryTotals"`
	PlannedVsSpent   []plannedVsSpentResponse `json:"plannedVsSpent"`
	UserMainCurrency string                   `json:"userMainCurrency"`
	Period           services.Period          `json:"period"`
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	result, err := h.analytics.GetAnalytics(r.Context(), userID, services.AnalyticsQuery{
		From:  query.Get("from"),
		To:    query.Get("to"),
		Month: query.Get("month"),
	})
	if err != nil {
		respondServiceError(w, err, "unable to load analytics")
		return
	}
	respondJSON(w, http.StatusOK, presentAnalytics(result))
}

// presentAnalytics is the only place analytics values are rounded.
func presentAnalytics(result services.Analytics) analyticsResponse {
	code := result.UserMainCurrency
	response := analyticsResponse{
		AccountBalances:  make([]accountBalanceResponse, 0, len(result.AccountBalances)),
		TotalBalance:     formatMoney(result.TotalBalance, code),
		TotalAvailable:   formatMoney(result.TotalAvailable, code),
		CategoryTotals:   make([]categoryTotalResponse, 0, len(result.CategoryTotals)),
		PlannedVsSpent:   make([]plannedVsSpentResponse, 0, len(result.PlannedVsSpent)),
		UserMainCurrency: code,
		Period:           result.Period,
	}
	for _, balance := range result.AccountBalances {
		response.AccountBalances = append(response.AccountBalances, accountBalanceResponse{
			AccountID:   balance.AccountID,
			Name:        balance.Name,
			Currency:    balance.Currency,
			Balance:     formatMoney(balance.Native, balance.Currency),
			Converted:   formatMoney(balance.Converted, code),
			IsAvailable: balance.IsAvailable,
		})
	}
	for _, total := range result.CategoryTotals {
		item := categoryTotalResponse{
			CategoryID:    total.CategoryID,
			Name:          total.Name,
			Color:         total.Color,
			Total:         formatMoney(total.Total, code),
			Subcategories: make([]subcategoryTotalResponse, 0, len(total.Subcategories)),
		}
		for _, sub := range total.Subcategories {
			item.Subcategories = append(item.Subcategories, subcategoryTotalResponse{
				SubcategoryID: sub.SubcategoryID,
				Name:          sub.Name,
				Color:         sub.Color,
				Total:         formatMoney(sub.Total, code),
			})
		}
		response.CategoryTotals = append(response.CategoryTotals, item)
	}
	for _, entry := range result.PlannedVsSpent {
		item := plannedVsSpentResponse{
			planLineResponse: presentPlanLine(entry.PlanLine, code),
			Subcategories:    make([]planLineResponse, 0, len(entry.Subcategories)),
		}
		for _, sub := range entry.Subcategories {
			item.Subcategories = append(item.Subcategories, presentPlanLine(sub, code))
		}
		response.PlannedVsSpent = append(response.PlannedVsSpent, item)
	}
	return response
}

func presentPlanLine(line services.PlanLine, code string) planLineResponse {
	return planLineResponse{
		ID:      line.ID,
		Name:    line.Name,
		Planned: formatMoney(line.Planned, code),
		Spent:   formatMoney(line.Spent, code),
		Left:    formatMoney(line.Left, code),
		IsOver:  line.IsOver,
	}
}

func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	table := h.rates.Rates(r.Context())
	rates := make(map[string]string, len(table.Rates))
	for code, rate := range table.Rates {
		rates[code] = rate.String()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"base":       table.Base,
		"rates":      rates,
		"fetched_at": table.FetchedAt,
	})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.audit.ListByActor(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
