package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"finflow/internal/currency"
	"finflow/internal/db"
	"finflow/internal/metrics"
	"finflow/internal/models"
	"finflow/internal/money"
	"finflow/internal/rates"
	"finflow/internal/store"
	"finflow/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAccountNotFound     = errors.New("account not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrSubcategoryMismatch = errors.New("subcategory does not belong to category")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrSameAccountTransfer = errors.New("cannot transfer to same account")
)

const (
	actionCreate    = "transaction.create"
	actionUpdate    = "transaction.update"
	actionDelete    = "transaction.delete"
	actionImport    = "transaction.import"
	actionTransfer  = "transfer.create"
	actionRecompute = "account.recompute"
)

type AccountStore interface {
	GetByUser(ctx context.Context, userID string) ([]models.Account, error)
	ListAll(ctx context.Context) ([]models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID, accountID string) (models.Account, error)
	AdjustBalance(ctx context.Context, tx store.Getter, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error
	Drift(ctx context.Context, userID string) ([]store.AccountDrift, error)
}

type CategoryStore interface {
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	ListSubcategories(ctx context.Context, userID string) ([]models.Subcategory, error)
	GetCategory(ctx context.Context, tx store.Getter, userID, categoryID string) (models.Category, error)
	GetSubcategory(ctx context.Context, tx store.Getter, userID, subcategoryID string) (models.Subcategory, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, t models.Transaction) error
	GetForUpdate(ctx context.Context, tx store.Getter, userID, transactionID string) (models.Transaction, error)
	ListByTransfer(ctx context.Context, tx store.Selecter, userID, transferID string) ([]models.Transaction, error)
	Update(ctx context.Context, tx store.Execer, t models.Transaction) error
	Delete(ctx context.Context, tx store.Execer, userID, transactionID string) (int64, error)
	SumByAccount(ctx context.Context, tx store.Getter, accountID string) (decimal.Decimal, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// LedgerService keeps accounts.balance equal to initial_balance plus the sum
// of the account's transactions. Every write and its balance change share one
// store transaction.
type LedgerService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	categories   CategoryStore
	transactions TransactionStore
	audit        AuditStore
	rates        rates.Provider
	hub          BalanceHub
	now          func() time.Time
	newID        func() string
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, categories CategoryStore, transactions TransactionStore, audit AuditStore, rateProvider rates.Provider, hub BalanceHub) *LedgerService {
	return &LedgerService{
		txRunner:     txRunner,
		accounts:     accounts,
		categories:   categories,
		transactions: transactions,
		audit:        audit,
		rates:        rateProvider,
		hub:          hub,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// balanceChange records an account touched inside a store transaction so the
// update can be pushed once the commit succeeds.
type balanceChange struct {
	userID    string
	accountID string
	currency  string
	balance   decimal.Decimal
	action    string
}

type CreateTransactionRequest struct {
	UserID        string
	AccountID     string
	CategoryID    string
	SubcategoryID *string
	Amount        decimal.Decimal
	Note          string
	Date          time.Time
}

func (s *LedgerService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (models.Transaction, error) {
	if req.Amount.IsZero() {
		return models.Transaction{}, ErrInvalidAmount
	}
	table := s.rates.Rates(ctx)
	var created models.Transaction
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		account, err := s.lockAccount(ctx, tx, req.UserID, req.AccountID)
		if err != nil {
			return err
		}
		if err := s.checkCategory(ctx, tx, req.UserID, req.CategoryID, req.SubcategoryID); err != nil {
			return err
		}
		created = models.Transaction{
			ID:            s.newID(),
			UserID:        req.UserID,
			AccountID:     account.ID,
			CategoryID:    req.CategoryID,
			SubcategoryID: req.SubcategoryID,
			Amount:        req.Amount,
			Currency:      account.DefaultCurrency,
			ExchangeRate:  models.RateSnapshot(table.Snapshot()),
			Note:          req.Note,
			CreatedAt:     s.dateOrNow(req.Date),
		}
		if err := s.transactions.Create(ctx, tx, created); err != nil {
			return err
		}
		change, err := s.adjust(ctx, tx, req.UserID, account.ID, account.DefaultCurrency, created.Amount, actionCreate)
		if err != nil {
			return err
		}
		changes = append(changes, change)
		return s.logTransaction(ctx, tx, actionCreate, created)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.publish(changes, "incremental")
	return created, nil
}

type UpdateTransactionRequest struct {
	UserID        string
	TransactionID string
	AccountID     *string
	CategoryID    *string
	SubcategoryID *string
	// ClearSubcategory removes the subcategory when SubcategoryID is nil.
	ClearSubcategory bool
	Amount           *decimal.Decimal
	Note             *string
	Date             *time.Time
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, req UpdateTransactionRequest) (models.Transaction, error) {
	if req.Amount != nil && req.Amount.IsZero() {
		return models.Transaction{}, ErrInvalidAmount
	}
	var table rates.Table
	if req.AccountID != nil && req.Amount == nil {
		table = s.rates.Rates(ctx)
	}
	var updated models.Transaction
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		existing, err := s.transactions.GetForUpdate(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		updated = existing
		if req.Amount != nil {
			updated.Amount = *req.Amount
		}
		if req.Note != nil {
			updated.Note = *req.Note
		}
		if req.Date != nil {
			updated.CreatedAt = req.Date.UTC()
		}
		if req.CategoryID != nil && *req.CategoryID != existing.CategoryID {
			updated.CategoryID = *req.CategoryID
			updated.SubcategoryID = nil
		}
		if req.SubcategoryID != nil {
			updated.SubcategoryID = req.SubcategoryID
		} else if req.ClearSubcategory {
			updated.SubcategoryID = nil
		}
		if updated.CategoryID != existing.CategoryID || !sameID(updated.SubcategoryID, existing.SubcategoryID) {
			if err := s.checkCategory(ctx, tx, req.UserID, updated.CategoryID, updated.SubcategoryID); err != nil {
				return err
			}
		}

		moved := req.AccountID != nil && *req.AccountID != existing.AccountID
		var oldAccount, newAccount models.Account
		if moved {
			oldAccount, newAccount, err = s.lockTwoAccounts(ctx, tx, req.UserID, existing.AccountID, *req.AccountID)
			if err != nil {
				return err
			}
			updated.AccountID = newAccount.ID
			updated.Currency = newAccount.DefaultCurrency
			// A move without a new amount keeps the value, not the number.
			if req.Amount == nil && !strings.EqualFold(existing.Currency, newAccount.DefaultCurrency) {
				converted, ok := currency.ConvertChecked(existing.Amount, existing.Currency, newAccount.DefaultCurrency, table)
				if !ok {
					log.Printf("warning: no rate for %s -> %s, moving transaction %s unconverted", existing.Currency, newAccount.DefaultCurrency, existing.ID)
				}
				updated.Amount = converted
				updated.ExchangeRate = models.RateSnapshot(table.Snapshot())
			}
		}
		if err := s.transactions.Update(ctx, tx, updated); err != nil {
			return err
		}

		if moved {
			change, err := s.adjust(ctx, tx, req.UserID, oldAccount.ID, oldAccount.DefaultCurrency, existing.Amount.Neg(), actionUpdate)
			if err != nil {
				return err
			}
			changes = append(changes, change)
			change, err = s.adjust(ctx, tx, req.UserID, newAccount.ID, newAccount.DefaultCurrency, updated.Amount, actionUpdate)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		} else if delta := updated.Amount.Sub(existing.Amount); !delta.IsZero() {
			change, err := s.adjust(ctx, tx, req.UserID, existing.AccountID, existing.Currency, delta, actionUpdate)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return s.logTransaction(ctx, tx, actionUpdate, updated)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.publish(changes, "incremental")
	return updated, nil
}

// DeleteTransaction removes the transaction and reverses its amount. Deleting
// either leg of a transfer removes both legs.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		existing, err := s.transactions.GetForUpdate(ctx, tx, userID, transactionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		legs := []models.Transaction{existing}
		if existing.TransferID != nil {
			legs, err = s.transactions.ListByTransfer(ctx, tx, userID, *existing.TransferID)
			if err != nil {
				return err
			}
		}
		sort.Slice(legs, func(i, j int) bool { return legs[i].AccountID < legs[j].AccountID })
		for _, leg := range legs {
			if _, err := s.transactions.Delete(ctx, tx, userID, leg.ID); err != nil {
				return err
			}
			change, err := s.adjust(ctx, tx, userID, leg.AccountID, leg.Currency, leg.Amount.Neg(), actionDelete)
			if err != nil {
				return err
			}
			changes = append(changes, change)
			if err := s.logTransaction(ctx, tx, actionDelete, leg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(changes, "incremental")
	return nil
}

type TransferRequest struct {
	UserID        string
	FromAccountID string
	ToAccountID   string
	CategoryID    string
	Amount        decimal.Decimal
	// ReceivedAmount is what lands in the destination account, in its
	// currency. When nil it equals Amount for same-currency transfers and is
	// converted at the current rate otherwise.
	ReceivedAmount *decimal.Decimal
	Note           string
	Date           time.Time
}

type TransferResult struct {
	TransferID string             `json:"transfer_id"`
	Debit      models.Transaction `json:"debit"`
	Credit     models.Transaction `json:"credit"`
}

func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if !req.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if req.ReceivedAmount != nil && !req.ReceivedAmount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return TransferResult{}, ErrSameAccountTransfer
	}
	table := s.rates.Rates(ctx)
	var result TransferResult
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		from, to, err := s.lockTwoAccounts(ctx, tx, req.UserID, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		if err := s.checkCategory(ctx, tx, req.UserID, req.CategoryID, nil); err != nil {
			return err
		}
		received := req.Amount
		if req.ReceivedAmount != nil {
			received = *req.ReceivedAmount
		} else if !strings.EqualFold(from.DefaultCurrency, to.DefaultCurrency) {
			converted, ok := currency.ConvertChecked(req.Amount, from.DefaultCurrency, to.DefaultCurrency, table)
			if !ok {
				log.Printf("warning: no rate for %s -> %s, crediting transfer unconverted", from.DefaultCurrency, to.DefaultCurrency)
			}
			received = converted
		}

		transferID := s.newID()
		date := s.dateOrNow(req.Date)
		snapshot := models.RateSnapshot(table.Snapshot())
		result.TransferID = transferID
		result.Debit = models.Transaction{
			ID: s.newID(), UserID: req.UserID, AccountID: from.ID, CategoryID: req.CategoryID,
			TransferID: &transferID, Amount: req.Amount.Neg(), Currency: from.DefaultCurrency,
			ExchangeRate: snapshot, Note: req.Note, CreatedAt: date,
		}
		result.Credit = models.Transaction{
			ID: s.newID(), UserID: req.UserID, AccountID: to.ID, CategoryID: req.CategoryID,
			TransferID: &transferID, Amount: received, Currency: to.DefaultCurrency,
			ExchangeRate: snapshot, Note: req.Note, CreatedAt: date,
		}
		for _, leg := range []models.Transaction{result.Debit, result.Credit} {
			if err := s.transactions.Create(ctx, tx, leg); err != nil {
				return err
			}
			change, err := s.adjust(ctx, tx, req.UserID, leg.AccountID, leg.Currency, leg.Amount, actionTransfer)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		data, _ := json.Marshal(map[string]string{
			"from_account_id": from.ID,
			"to_account_id":   to.ID,
			"amount":          req.Amount.String(),
			"received":        received.String(),
		})
		return s.audit.Log(ctx, tx, req.UserID, actionTransfer, "transfer", transferID, string(data))
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.publish(changes, "incremental")
	return result, nil
}

// PendingTransaction is a validated import row ready to be written. Amount is
// already in the account's currency.
type PendingTransaction struct {
	AccountID     string
	CategoryID    string
	SubcategoryID *string
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  map[string]decimal.Decimal
	Note          string
	CreatedAt     time.Time
}

// InsertPending writes one imported row and applies its amount to the account.
func (s *LedgerService) InsertPending(ctx context.Context, userID string, pending PendingTransaction) (models.Transaction, error) {
	var created models.Transaction
	var changes []balanceChange
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changes = nil
		created = models.Transaction{
			ID:            s.newID(),
			UserID:        userID,
			AccountID:     pending.AccountID,
			CategoryID:    pending.CategoryID,
			SubcategoryID: pending.SubcategoryID,
			Amount:        pending.Amount,
			Currency:      pending.Currency,
			ExchangeRate:  models.RateSnapshot(pending.ExchangeRate),
			Note:          pending.Note,
			CreatedAt:     pending.CreatedAt,
		}
		if err := s.transactions.Create(ctx, tx, created); err != nil {
			return err
		}
		change, err := s.adjust(ctx, tx, userID, pending.AccountID, pending.Currency, pending.Amount, actionImport)
		if err != nil {
			return err
		}
		changes = append(changes, change)
		return s.logTransaction(ctx, tx, actionImport, created)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.publish(changes, "incremental")
	return created, nil
}

type Reconciliation struct {
	AccountID  string          `json:"account_id"`
	UserID     string          `json:"user_id"`
	Currency   string          `json:"currency"`
	Previous   decimal.Decimal `json:"previous"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Drift      decimal.Decimal `json:"drift"`
}

func (r Reconciliation) Changed() bool {
	return !r.Drift.IsZero()
}

// RecomputeAccount resets the cached balance to initial_balance plus the sum of
// the account's transactions. Running it again changes nothing.
func (s *LedgerService) RecomputeAccount(ctx context.Context, userID, accountID string) (Reconciliation, error) {
	var result Reconciliation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.lockAccount(ctx, tx, userID, accountID)
		if err != nil {
			return err
		}
		sum, err := s.transactions.SumByAccount(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		recomputed := account.InitialBalance.Add(sum)
		result = Reconciliation{
			AccountID:  account.ID,
			UserID:     account.UserID,
			Currency:   account.DefaultCurrency,
			Previous:   account.Balance,
			Recomputed: recomputed,
			Drift:      account.Balance.Sub(recomputed),
		}
		if !result.Changed() {
			return nil
		}
		if err := s.accounts.SetBalance(ctx, tx, account.ID, recomputed); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"previous":   result.Previous.String(),
			"recomputed": recomputed.String(),
		})
		return s.audit.Log(ctx, tx, userID, actionRecompute, "account", account.ID, string(data))
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if result.Changed() {
		log.Printf("warning: account %s balance drifted by %s %s, reset to %s", result.AccountID, result.Drift, result.Currency, result.Recomputed)
		s.publish([]balanceChange{{
			userID:    result.UserID,
			accountID: result.AccountID,
			currency:  result.Currency,
			balance:   result.Recomputed,
			action:    actionRecompute,
		}}, "recompute")
	}
	return result, nil
}

// RecomputeAll repairs every account of userID, or every account in the store
// when userID is empty. It stops at the first failure and returns what was done.
func (s *LedgerService) RecomputeAll(ctx context.Context, userID string) ([]Reconciliation, error) {
	var accounts []models.Account
	var err error
	if userID == "" {
		accounts, err = s.accounts.ListAll(ctx)
	} else {
		accounts, err = s.accounts.GetByUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	results := make([]Reconciliation, 0, len(accounts))
	for _, account := range accounts {
		result, err := s.RecomputeAccount(ctx, account.UserID, account.ID)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// CheckIntegrity compares cached and derived balances without correcting them.
func (s *LedgerService) CheckIntegrity(ctx context.Context, userID string) ([]store.AccountDrift, error) {
	rows, err := s.accounts.Drift(ctx, userID)
	if err != nil {
		return nil, err
	}
	drifted := 0
	for _, row := range rows {
		if !row.Difference.IsZero() {
			drifted++
			log.Printf("warning: account %s stored %s but ledger gives %s %s", row.AccountID, row.StoredBalance, row.CalculatedBalance, row.Currency)
		}
	}
	metrics.BalanceDrift.Set(float64(drifted))
	return rows, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx store.Getter, userID, accountID string) (models.Account, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, userID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

// lockTwoAccounts takes row locks in id order so concurrent transfers between
// the same pair cannot deadlock.
func (s *LedgerService) lockTwoAccounts(ctx context.Context, tx store.Getter, userID, firstID, secondID string) (models.Account, models.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := s.lockAccount(ctx, tx, userID, leftID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	right, err := s.lockAccount(ctx, tx, userID, rightID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func (s *LedgerService) checkCategory(ctx context.Context, tx store.Getter, userID, categoryID string, subcategoryID *string) error {
	if _, err := s.categories.GetCategory(ctx, tx, userID, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	if subcategoryID == nil {
		return nil
	}
	sub, err := s.categories.GetSubcategory(ctx, tx, userID, *subcategoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubcategoryMismatch
		}
		return err
	}
	if sub.CategoryID != categoryID {
		return ErrSubcategoryMismatch
	}
	return nil
}

func (s *LedgerService) adjust(ctx context.Context, tx store.Getter, userID, accountID, code string, delta decimal.Decimal, action string) (balanceChange, error) {
	balance, err := s.accounts.AdjustBalance(ctx, tx, accountID, delta)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return balanceChange{}, ErrAccountNotFound
		}
		return balanceChange{}, err
	}
	return balanceChange{userID: userID, accountID: accountID, currency: code, balance: balance, action: action}, nil
}

func (s *LedgerService) logTransaction(ctx context.Context, tx store.Execer, action string, t models.Transaction) error {
	data, _ := json.Marshal(map[string]string{
		"account_id": t.AccountID,
		"amount":     t.Amount.String(),
		"currency":   t.Currency,
	})
	return s.audit.Log(ctx, tx, t.UserID, action, "transaction", t.ID, string(data))
}

func (s *LedgerService) publish(changes []balanceChange, path string) {
	for _, change := range changes {
		metrics.BalanceAdjustments.WithLabelValues(path).Inc()
		s.hub.BroadcastBalance(change.userID, websocket.BalanceUpdate{
			AccountID: change.accountID,
			Balance:   money.Format(change.balance, change.currency),
			Currency:  change.currency,
			Reason:    change.action,
		})
	}
}

func (s *LedgerService) dateOrNow(date time.Time) time.Time {
	if date.IsZero() {
		return s.now().UTC()
	}
	return date.UTC()
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
