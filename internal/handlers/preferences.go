package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"finflow/internal/middleware"
	"finflow/internal/models"
	"finflow/internal/store"
	"finflow/internal/validator"
)

type preferencesRequest struct {
	MainCurrency      string   `json:"main_currency"`
	EnabledCurrencies []string `json:"enabled_currencies"`
}

// GetPreferences falls back to the rate base currency for users who never
// saved preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	prefs, err := h.preferences.Get(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusInternalServerError, "unable to load preferences")
			return
		}
		prefs = models.UserPreferences{UserID: userID, MainCurrency: h.cfg.Rates.BaseCurrency}
	}
	if prefs.EnabledCurrencies == nil {
		prefs.EnabledCurrencies = []string{}
	}
	respondJSON(w, http.StatusOK, prefs)
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	prefs := models.UserPreferences{
		UserID:            userID,
		MainCurrency:      strings.ToUpper(strings.TrimSpace(req.MainCurrency)),
		EnabledCurrencies: make([]string, 0, len(req.EnabledCurrencies)),
	}
	if err := validator.ValidateCurrency(prefs.MainCurrency); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_currency")
		return
	}
	seen := map[string]bool{}
	for _, code := range req.EnabledCurrencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		if err := validator.ValidateCurrency(code); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_currency")
			return
		}
		if !seen[code] {
			seen[code] = true
			prefs.EnabledCurrencies = append(prefs.EnabledCurrencies, code)
		}
	}
	if err := h.preferences.Upsert(r.Context(), prefs); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save preferences")
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}
