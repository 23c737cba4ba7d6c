package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"finflow/internal/currency"
	"finflow/internal/metrics"
	"finflow/internal/models"
	"finflow/internal/money"
	"finflow/internal/rates"

	"github.com/agnivade/levenshtein"
)

const (
	reasonMissingFields = "Missing required fields"
	reasonInsertFailed  = "Insert failed"

	// suggestionDistance is the largest edit distance offered as a "did you mean".
	suggestionDistance = 2
	defaultWorkers     = 4
)

// RawRow is one line of an import file, untouched apart from trimming.
type RawRow struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Account     string `json:"account"`
	Note        string `json:"note"`
}

// ReferenceData is the read-only view a row is validated against.
type ReferenceData struct {
	categories    map[string]models.Category
	accounts      map[string]models.Account
	subcategories map[string]models.Subcategory
	categoryNames []string
	accountNames  []string
	subNames      map[string][]string
	Rates         rates.Table
}

func NewReferenceData(categories []models.Category, subcategories []models.Subcategory, accounts []models.Account, table rates.Table) ReferenceData {
	ref := ReferenceData{
		categories:    make(map[string]models.Category, len(categories)),
		accounts:      make(map[string]models.Account, len(accounts)),
		subcategories: make(map[string]models.Subcategory, len(subcategories)),
		subNames:      map[string][]string{},
		Rates:         table,
	}
	for _, category := range categories {
		ref.categories[nameKey(category.Name)] = category
		ref.categoryNames = append(ref.categoryNames, category.Name)
	}
	for _, account := range accounts {
		ref.accounts[nameKey(account.Name)] = account
		ref.accountNames = append(ref.accountNames, account.Name)
	}
	for _, sub := range subcategories {
		ref.subcategories[sub.CategoryID+nameKey(sub.Name)] = sub
		ref.subNames[sub.CategoryID] = append(ref.subNames[sub.CategoryID], sub.Name)
	}
	sort.Strings(ref.categoryNames)
	sort.Strings(ref.accountNames)
	for id := range ref.subNames {
		sort.Strings(ref.subNames[id])
	}
	return ref
}

// RowResult holds either a pending transaction or the reason the row was
// rejected. Suggestion is the closest known name for an unresolved reference.
type RowResult struct {
	Pending    *PendingTransaction
	Reason     string
	Suggestion string
}

func (r RowResult) OK() bool {
	return r.Pending != nil
}

func rejected(reason string) RowResult {
	return RowResult{Reason: reason}
}

// ValidateRow checks one row against ref, stopping at the first failure. It
// has no side effects, so rows can be validated in any order or in parallel.
func ValidateRow(row RawRow, ref ReferenceData) RowResult {
	categoryName := strings.TrimSpace(row.Category)
	accountName := strings.TrimSpace(row.Account)
	rawAmount := strings.TrimSpace(row.Amount)
	rawDate := strings.TrimSpace(row.Date)
	if categoryName == "" || accountName == "" || rawAmount == "" || rawDate == "" {
		return rejected(reasonMissingFields)
	}

	category, ok := ref.categories[nameKey(categoryName)]
	if !ok {
		result := rejected(fmt.Sprintf("Category '%s' not found", categoryName))
		result.Suggestion = closestName(categoryName, ref.categoryNames)
		return result
	}
	account, ok := ref.accounts[nameKey(accountName)]
	if !ok {
		result := rejected(fmt.Sprintf("Account '%s' not found", accountName))
		result.Suggestion = closestName(accountName, ref.accountNames)
		return result
	}

	var subcategoryID *string
	if subName := strings.TrimSpace(row.Subcategory); subName != "" {
		sub, ok := ref.subcategories[category.ID+nameKey(subName)]
		if !ok {
			result := rejected(fmt.Sprintf("Subcategory '%s' not found in category '%s'", subName, category.Name))
			result.Suggestion = closestName(subName, ref.subNames[category.ID])
			return result
		}
		id := sub.ID
		subcategoryID = &id
	}

	amount, err := money.ParseAmount(rawAmount)
	if err != nil {
		return rejected(fmt.Sprintf("Invalid amount '%s'", rawAmount))
	}

	accountCurrency := strings.ToUpper(account.DefaultCurrency)
	rowCurrency := strings.ToUpper(strings.TrimSpace(row.Currency))
	if rowCurrency == "" {
		rowCurrency = accountCurrency
	}
	if rowCurrency != accountCurrency {
		if !currency.Supports(ref.Rates, rowCurrency, accountCurrency) {
			return rejected(fmt.Sprintf("Unsupported currency conversion %s -> %s", rowCurrency, accountCurrency))
		}
		amount = currency.Convert(amount, rowCurrency, accountCurrency, ref.Rates)
	}

	date, ok := ParseImportDate(rawDate)
	if !ok {
		return rejected(fmt.Sprintf("Invalid date '%s'", rawDate))
	}

	return RowResult{Pending: &PendingTransaction{
		AccountID:     account.ID,
		CategoryID:    category.ID,
		SubcategoryID: subcategoryID,
		Amount:        amount,
		Currency:      accountCurrency,
		ExchangeRate:  ref.Rates.Snapshot(),
		Note:          strings.TrimSpace(row.Note),
		CreatedAt:     date,
	}}
}

var fallbackDateLayouts = []string{
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
}

// ParseImportDate accepts, in priority order, a full timestamp, an ISO date, the
// legacy DD-Mon-YYYY form and a handful of common layouts. Anything without a
// time of day lands at noon UTC so no timezone can move it to another day.
func ParseImportDate(value string) (time.Time, bool) {
	if parsed, err := time.ParseInLocation(time.DateTime, value, time.UTC); err == nil {
		return parsed, true
	}
	if parsed, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err == nil {
		return noonUTC(parsed), true
	}
	if parsed, err := time.ParseInLocation("02-Jan-2006", value, time.UTC); err == nil {
		return noonUTC(parsed), true
	}
	for _, layout := range fallbackDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return noonUTC(parsed), true
		}
	}
	return time.Time{}, false
}

func noonUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func closestName(input string, candidates []string) string {
	target := nameKey(input)
	best := ""
	bestDistance := suggestionDistance + 1
	for _, candidate := range candidates {
		distance := levenshtein.ComputeDistance(target, nameKey(candidate))
		if distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	return best
}

type ReferenceLoader interface {
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	ListSubcategories(ctx context.Context, userID string) ([]models.Subcategory, error)
}

type AccountLister interface {
	GetByUser(ctx context.Context, userID string) ([]models.Account, error)
}

type PendingWriter interface {
	InsertPending(ctx context.Context, userID string, pending PendingTransaction) (models.Transaction, error)
}

type SkippedRow struct {
	RawRow
	Line          int    `json:"line"`
	FailureReason string `json:"failure_reason"`
	Suggestion    string `json:"suggestion,omitempty"`
}

type ImportResult struct {
	Added       int          `json:"added"`
	Skipped     int          `json:"skipped"`
	SkippedRows []SkippedRow `json:"skippedRows"`
}

type ImportService struct {
	categories ReferenceLoader
	accounts   AccountLister
	ledger     PendingWriter
	rates      rates.Provider
	workers    int
}

func NewImportService(categories ReferenceLoader, accounts AccountLister, ledger PendingWriter, rateProvider rates.Provider, workers int) *ImportService {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &ImportService{
		categories: categories,
		accounts:   accounts,
		ledger:     ledger,
		rates:      rateProvider,
		workers:    workers,
	}
}

// LoadReference snapshots the user's names and the current rate table.
func (s *ImportService) LoadReference(ctx context.Context, userID string) (ReferenceData, error) {
	categories, err := s.categories.ListCategories(ctx, userID)
	if err != nil {
		return ReferenceData{}, fmt.Errorf("load categories: %w", err)
	}
	subcategories, err := s.categories.ListSubcategories(ctx, userID)
	if err != nil {
		return ReferenceData{}, fmt.Errorf("load subcategories: %w", err)
	}
	accounts, err := s.accounts.GetByUser(ctx, userID)
	if err != nil {
		return ReferenceData{}, fmt.Errorf("load accounts: %w", err)
	}
	return NewReferenceData(categories, subcategories, accounts, s.rates.Rates(ctx)), nil
}

// Import validates every row and writes the valid ones. Only a failure to load
// reference data aborts the batch; everything else becomes a skipped row.
// Line numbers are 1-based positions in rows.
func (s *ImportService) Import(ctx context.Context, userID string, rows []RawRow) (ImportResult, error) {
	ref, err := s.LoadReference(ctx, userID)
	if err != nil {
		return ImportResult{}, err
	}

	type job struct {
		index   int
		pending PendingTransaction
	}
	skipped := make([]*SkippedRow, len(rows))
	var jobs []job
	for i, row := range rows {
		result := ValidateRow(row, ref)
		if !result.OK() {
			skipped[i] = &SkippedRow{RawRow: row, Line: i + 1, FailureReason: result.Reason, Suggestion: result.Suggestion}
			continue
		}
		jobs = append(jobs, job{index: i, pending: *result.Pending})
	}

	queue := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for w := 0; w < min(s.workers, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				_, err := s.ledger.InsertPending(ctx, userID, j.pending)
				mu.Lock()
				if err != nil {
					log.Printf("warning: import row %d for user %s not inserted: %v", j.index+1, userID, err)
					skipped[j.index] = &SkippedRow{RawRow: rows[j.index], Line: j.index + 1, FailureReason: reasonInsertFailed}
				} else {
					added++
				}
				mu.Unlock()
			}
		}()
	}
	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()

	result := ImportResult{Added: added, SkippedRows: []SkippedRow{}}
	for _, row := range skipped {
		if row != nil {
			result.SkippedRows = append(result.SkippedRows, *row)
		}
	}
	result.Skipped = len(result.SkippedRows)
	metrics.ImportRows.WithLabelValues("added").Add(float64(result.Added))
	metrics.ImportRows.WithLabelValues("skipped").Add(float64(result.Skipped))
	return result, nil
}
