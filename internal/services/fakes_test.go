package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"finflow/internal/models"
	"finflow/internal/rates"
	"finflow/internal/store"
	"finflow/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memoryLedger is an in-memory stand-in for the account, category,
// transaction and audit stores. Writes made by a failed unit are not rolled
// back, so tests that inject failures assert on the returned error only.
type memoryLedger struct {
	mu            sync.Mutex
	accounts      map[string]models.Account
	categories    map[string]models.Category
	subcategories map[string]models.Subcategory
	transactions  map[string]models.Transaction
	audits        []string

	createErr error
	adjustErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:      map[string]models.Account{},
		categories:    map[string]models.Category{},
		subcategories: map[string]models.Subcategory{},
		transactions:  map[string]models.Transaction{},
	}
}

func (m *memoryLedger) addAccount(id, userID, name, code string, initial string) {
	amount := decimal.RequireFromString(initial)
	m.accounts[id] = models.Account{ID: id, UserID: userID, Name: name, DefaultCurrency: code, InitialBalance: amount, Balance: amount, IsAvailable: true}
}

func (m *memoryLedger) addCategory(id, userID, name string) {
	m.categories[id] = models.Category{ID: id, UserID: userID, Name: name}
}

func (m *memoryLedger) addSubcategory(id, categoryID, userID, name string) {
	m.subcategories[id] = models.Subcategory{ID: id, CategoryID: categoryID, UserID: userID, Name: name}
}

func (m *memoryLedger) balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

func (m *memoryLedger) setBalance(id string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[id]
	account.Balance = decimal.RequireFromString(value)
	m.accounts[id] = account
}

// derived is the canonical balance: initial plus the sum of transactions.
func (m *memoryLedger) derived(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.accounts[id].InitialBalance
	for _, t := range m.transactions {
		if t.AccountID == id {
			total = total.Add(t.Amount)
		}
	}
	return total
}

func (m *memoryLedger) GetByUser(_ context.Context, userID string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, account := range m.accounts {
		if account.UserID == userID {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryLedger) ListAll(_ context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryLedger) GetForUpdate(_ context.Context, _ store.Getter, userID, accountID string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok || account.UserID != userID {
		return models.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m *memoryLedger) AdjustBalance(_ context.Context, _ store.Getter, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return decimal.Zero, m.adjustErr
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	account.Balance = account.Balance.Add(delta)
	m.accounts[accountID] = account
	return account.Balance, nil
}

func (m *memoryLedger) SetBalance(_ context.Context, _ store.Execer, accountID string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[accountID]
	account.Balance = balance
	m.accounts[accountID] = account
	return nil
}

func (m *memoryLedger) Drift(ctx context.Context, userID string) ([]store.AccountDrift, error) {
	accounts, _ := m.ListAll(ctx)
	var out []store.AccountDrift
	for _, account := range accounts {
		if userID != "" && account.UserID != userID {
			continue
		}
		calculated := m.derived(account.ID)
		out = append(out, store.AccountDrift{
			AccountID:         account.ID,
			UserID:            account.UserID,
			Name:              account.Name,
			Currency:          account.DefaultCurrency,
			StoredBalance:     account.Balance,
			CalculatedBalance: calculated,
			Difference:        account.Balance.Sub(calculated),
		})
	}
	return out, nil
}

func (m *memoryLedger) ListCategories(_ context.Context, userID string) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Category
	for _, category := range m.categories {
		if category.UserID == userID {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryLedger) ListSubcategories(_ context.Context, userID string) ([]models.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subcategory
	for _, sub := range m.subcategories {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryLedger) GetCategory(_ context.Context, _ store.Getter, userID, categoryID string) (models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[categoryID]
	if !ok || category.UserID != userID {
		return models.Category{}, store.ErrNotFound
	}
	return category, nil
}

func (m *memoryLedger) GetSubcategory(_ context.Context, _ store.Getter, userID, subcategoryID string) (models.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subcategories[subcategoryID]
	if !ok || sub.UserID != userID {
		return models.Subcategory{}, store.ErrNotFound
	}
	return sub, nil
}

func (m *memoryLedger) Create(_ context.Context, _ store.Execer, t models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.transactions[t.ID] = t
	return nil
}

func (m *memoryLedger) GetForUpdateTx(userID, transactionID string) (models.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	return t, ok && t.UserID == userID
}

func (m *memoryLedger) ListByTransfer(_ context.Context, _ store.Selecter, userID, transferID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.transactions {
		if t.UserID == userID && t.TransferID != nil && *t.TransferID == transferID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryLedger) Update(_ context.Context, _ store.Execer, t models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = t
	return nil
}

func (m *memoryLedger) Delete(_ context.Context, _ store.Execer, userID, transactionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok || t.UserID != userID {
		return 0, nil
	}
	delete(m.transactions, transactionID)
	return 1, nil
}

func (m *memoryLedger) SumByAccount(_ context.Context, _ store.Getter, accountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, t := range m.transactions {
		if t.AccountID == accountID {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (m *memoryLedger) Log(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, action)
	return nil
}

// memoryTransactions adapts memoryLedger to TransactionStore; GetForUpdate
// clashes with the account method of the same name.
type memoryTransactions struct {
	*memoryLedger
}

func (m memoryTransactions) GetForUpdate(_ context.Context, _ store.Getter, userID, transactionID string) (models.Transaction, error) {
	t, ok := m.GetForUpdateTx(userID, transactionID)
	if !ok {
		return models.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

type staticRates struct {
	table rates.Table
}

func (s staticRates) Rates(context.Context) rates.Table {
	return s.table
}

func testRates() staticRates {
	return staticRates{table: rates.Table{Base: "USD", Rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.9"),
		"AMD": decimal.NewFromInt(400),
	}}}
}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

func (s *stubHub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestLedger(mem *memoryLedger, hub *stubHub) *LedgerService {
	service := NewLedgerService(fakeTxRunner{}, mem, mem, memoryTransactions{mem}, mem, testRates(), hub)
	service.now = func() time.Time { return time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC) }
	return service
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func ptr[T any](value T) *T {
	return &value
}
