package handlers

import (
	"net/http"
	"strings"

	"finflow/internal/config"
	"finflow/internal/middleware"
	"finflow/internal/rates"
	"finflow/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	cfg          config.Config
	ledger       LedgerService
	imports      ImportService
	analytics    AnalyticsService
	accounts     AccountStore
	transactions TransactionStore
	preferences  PreferencesStore
	audit        AuditStore
	rates        rates.Provider
	ws           *websocket.Server
}

func New(cfg config.Config, ledger LedgerService, imports ImportService, analytics AnalyticsService, accounts AccountStore, transactions TransactionStore, preferences PreferencesStore, audit AuditStore, rateProvider rates.Provider, ws *websocket.Server) *Handler {
	return &Handler{
		cfg:          cfg,
		ledger:       ledger,
		imports:      imports,
		analytics:    analytics,
		accounts:     accounts,
		transactions: transactions,
		preferences:  preferences,
		audit:        audit,
		rates:        rateProvider,
		ws:           ws,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   SplitOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/analytics", h.GetAnalytics)
		r.Get("/rates", h.GetRates)
		r.Get("/audit", h.ListAuditLogs)
		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.UpdatePreferences)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/integrity", h.CheckIntegrity)
			r.Post("/recompute", h.RecomputeAll)
			r.Get("/{id}", h.GetAccount)
			r.Post("/{id}/recompute", h.RecomputeAccount)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/transfer", h.Transfer)
			r.Post("/import", h.ImportTransactions)
			r.Post("/import/skipped", h.ExportSkipped)
		})
	})

	router.Get("/ws/balances", h.WSBalances)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

// SplitOrigins parses a comma-separated origin list; empty means any origin.
func SplitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
