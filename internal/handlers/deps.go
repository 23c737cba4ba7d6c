package handlers

import (
	"context"
	"time"

	"finflow/internal/models"
	"finflow/internal/services"
	"finflow/internal/store"
)

type AccountStore interface {
	GetByUser(ctx context.Context, userID string) ([]models.Account, error)
	GetByID(ctx context.Context, userID, accountID string) (models.Account, error)
}

type TransactionStore interface {
	GetByID(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, start, end time.Time, limit, offset int) ([]models.Transaction, error)
}

type PreferencesStore interface {
	Get(ctx context.Context, userID string) (models.UserPreferences, error)
	Upsert(ctx context.Context, prefs models.UserPreferences) error
}

type AuditStore interface {
	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error)
}

type LedgerService interface {
	CreateTransaction(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error)
	UpdateTransaction(ctx context.Context, req services.UpdateTransactionRequest) (models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	RecomputeAccount(ctx context.Context, userID, accountID string) (services.Reconciliation, error)
	RecomputeAll(ctx context.Context, userID string) ([]services.Reconciliation, error)
	CheckIntegrity(ctx context.Context, userID string) ([]store.AccountDrift, error)
}

type ImportService interface {
	Import(ctx context.Context, userID string, rows []services.RawRow) (services.ImportResult, error)
}

type AnalyticsService interface {
	GetAnalytics(ctx context.Context, userID string, query services.AnalyticsQuery) (services.Analytics, error)
}
