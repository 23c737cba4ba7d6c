package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"finflow/internal/auth"
	"finflow/internal/config"
	"finflow/internal/models"
	"finflow/internal/rates"
	"finflow/internal/services"
	"finflow/internal/store"
	"finflow/internal/websocket"

	"github.com/shopspring/decimal"
)

type stubLedger struct {
	createFn       func(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error)
	updateFn       func(ctx context.Context, req services.UpdateTransactionRequest) (models.Transaction, error)
	deleteFn       func(ctx context.Context, userID, transactionID string) error
	transferFn     func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	recomputeFn    func(ctx context.Context, userID, accountID string) (services.Reconciliation, error)
	recomputeAllFn func(ctx context.Context, userID string) ([]services.Reconciliation, error)
	integrityFn    func(ctx context.Context, userID string) ([]store.AccountDrift, error)
}

func (s stubLedger) CreateTransaction(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error) {
	if s.createFn == nil {
		return models.Transaction{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubLedger) UpdateTransaction(ctx context.Context, req services.UpdateTransactionRequest) (models.Transaction, error) {
	if s.updateFn == nil {
		return models.Transaction{}, nil
	}
	return s.updateFn(ctx, req)
}

func (s stubLedger) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, transactionID)
}

func (s stubLedger) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubLedger) RecomputeAccount(ctx context.Context, userID, accountID string) (services.Reconciliation, error) {
	if s.recomputeFn == nil {
		return services.Reconciliation{}, nil
	}
	return s.recomputeFn(ctx, userID, accountID)
}

func (s stubLedger) RecomputeAll(ctx context.Context, userID string) ([]services.Reconciliation, error) {
	if s.recomputeAllFn == nil {
		return nil, nil
	}
	return s.recomputeAllFn(ctx, userID)
}

func (s stubLedger) CheckIntegrity(ctx context.Context, userID string) ([]store.AccountDrift, error) {
	if s.integrityFn == nil {
		return nil, nil
	}
	return s.integrityFn(ctx, userID)
}

type stubImports struct {
	importFn func(ctx context.Context, userID string, rows []services.RawRow) (services.ImportResult, error)
}

func (s stubImports) Import(ctx context.Context, userID string, rows []services.RawRow) (services.ImportResult, error) {
	if s.importFn == nil {
		return services.ImportResult{SkippedRows: []services.SkippedRow{}}, nil
	}
	return s.importFn(ctx, userID, rows)
}

type stubAnalytics struct {
	getFn func(ctx context.Context, userID string, query services.AnalyticsQuery) (services.Analytics, error)
}

func (s stubAnalytics) GetAnalytics(ctx context.Context, userID string, query services.AnalyticsQuery) (services.Analytics, error) {
	if s.getFn == nil {
		return services.Analytics{}, nil
	}
	return s.getFn(ctx, userID, query)
}

type stubAccountStore struct {
	getByUserFn func(ctx context.Context, userID string) ([]models.Account, error)
	getByIDFn   func(ctx context.Context, userID, accountID string) (models.Account, error)
}

func (s stubAccountStore) GetByID(ctx context.Context, userID, accountID string) (models.Account, error) {
	if s.getByIDFn == nil {
		return models.Account{}, store.ErrNotFound
	}
	return s.getByIDFn(ctx, userID, accountID)
}

func (s stubAccountStore) GetByUser(ctx context.Context, userID string) ([]models.Account, error) {
	if s.getByUserFn == nil {
		return nil, nil
	}
	return s.getByUserFn(ctx, userID)
}

type stubTransactionStore struct {
	getByIDFn    func(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	listByUserFn func(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) GetByID(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	if s.getByIDFn == nil {
		return models.Transaction{}, store.ErrNotFound
	}
	return s.getByIDFn(ctx, userID, transactionID)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]models.Transaction, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, start, end, limit, offset)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, actorID, limit, offset)
}

type stubPreferences struct {
	getFn    func(ctx context.Context, userID string) (models.UserPreferences, error)
	upsertFn func(ctx context.Context, prefs models.UserPreferences) error
}

func (s stubPreferences) Get(ctx context.Context, userID string) (models.UserPreferences, error) {
	if s.getFn == nil {
		return models.UserPreferences{}, store.ErrNotFound
	}
	return s.getFn(ctx, userID)
}

func (s stubPreferences) Upsert(ctx context.Context, prefs models.UserPreferences) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, prefs)
}

type stubRates struct{}

func (stubRates) Rates(context.Context) rates.Table {
	return rates.Table{Base: "USD", Rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.9"),
	}}
}

func newTestHandler(ledger LedgerService, imports ImportService, analytics AnalyticsService, accounts AccountStore, transactions TransactionStore, audit AuditStore) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		AllowedOrigins: "*",
		Rates:          config.RatesConfig{BaseCurrency: "USD"},
		Import:         config.ImportConfig{Workers: 2, MaxBytes: 1 << 20},
	}
	hub := websocket.NewHub()
	return New(cfg, ledger, imports, analytics, accounts, transactions, stubPreferences{}, audit, stubRates{}, websocket.NewServer(hub, []string{"*"}))
}

// serveWithAuth routes the request through the full router with a valid token
// for userID.
func serveWithAuth(t *testing.T, handler *Handler, method, target string, body io.Reader, userID string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
