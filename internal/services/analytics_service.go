package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"finflow/internal/currency"
	"finflow/internal/metrics"
	"finflow/internal/models"
	"finflow/internal/money"
	"finflow/internal/rates"
	"finflow/internal/store"

	"github.com/shopspring/decimal"
)

type TotalsStore interface {
	CategoryTotals(ctx context.Context, userID string, start, end time.Time) ([]store.CategoryTotal, error)
	SubcategoryTotals(ctx context.Context, userID string, categoryIDs []string, start, end time.Time) ([]store.SubcategoryTotal, error)
}

type PlanStore interface {
	ListForMonth(ctx context.Context, userID, month string) ([]store.PlanRow, error)
	ListForYear(ctx context.Context, userID, year string) ([]store.PlanRow, error)
}

type PreferencesStore interface {
	Get(ctx context.Context, userID string) (models.UserPreferences, error)
}

type AnalyticsQuery struct {
	From  string
	To    string
	Month string
}

// AccountBalance keeps the native balance next to its display-currency value.
type AccountBalance struct {
	AccountID   string
	Name        string
	Currency    string
	Native      decimal.Decimal
	Converted   decimal.Decimal
	IsAvailable bool
}

type SubcategoryTotal struct {
	SubcategoryID string
	Name          string
	Color         string
	Total         decimal.Decimal
}

type CategoryTotal struct {
	CategoryID    string
	Name          string
	Color         string
	Total         decimal.Decimal
	Subcategories []SubcategoryTotal
}

type PlanLine struct {
	ID      string
	Name    string
	Planned decimal.Decimal
	Spent   decimal.Decimal
	Left    decimal.Decimal
	IsOver  bool
}

type PlannedVsSpent struct {
	PlanLine
	Subcategories []PlanLine
}

// Analytics carries unrounded values; rounding happens when it is rendered.
type Analytics struct {
	AccountBalances  []AccountBalance
	TotalBalance     decimal.Decimal
	TotalAvailable   decimal.Decimal
	CategoryTotals   []CategoryTotal
	PlannedVsSpent   []PlannedVsSpent
	UserMainCurrency string
	Period           Period
}

type AnalyticsService struct {
	accounts    AccountLister
	totals      TotalsStore
	plans       PlanStore
	preferences PreferencesStore
	rates       rates.Provider
	now         func() time.Time
}

func NewAnalyticsService(accounts AccountLister, totals TotalsStore, plans PlanStore, preferences PreferencesStore, rateProvider rates.Provider) *AnalyticsService {
	return &AnalyticsService{
		accounts:    accounts,
		totals:      totals,
		plans:       plans,
		preferences: preferences,
		rates:       rateProvider,
		now:         time.Now,
	}
}

// GetAnalytics reads persisted balances and period totals; it never rescans
// transaction history to derive balances.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, userID string, query AnalyticsQuery) (Analytics, error) {
	started := time.Now()
	defer func() { metrics.AnalyticsDuration.Observe(time.Since(started).Seconds()) }()

	period, err := ResolvePeriod(query.From, query.To, query.Month, s.now())
	if err != nil {
		return Analytics{}, err
	}
	table := s.rates.Rates(ctx)
	mainCurrency, err := s.mainCurrency(ctx, userID, table)
	if err != nil {
		return Analytics{}, err
	}

	accounts, err := s.accounts.GetByUser(ctx, userID)
	if err != nil {
		return Analytics{}, err
	}
	result := Analytics{UserMainCurrency: mainCurrency, Period: period}
	result.AccountBalances, result.TotalBalance, result.TotalAvailable = convertBalances(accounts, mainCurrency, table)

	categoryRows, err := s.totals.CategoryTotals(ctx, userID, period.Start, period.End)
	if err != nil {
		return Analytics{}, err
	}
	ids := make([]string, 0, len(categoryRows))
	for _, row := range categoryRows {
		ids = append(ids, row.CategoryID)
	}
	subRows, err := s.totals.SubcategoryTotals(ctx, userID, ids, period.Start, period.End)
	if err != nil {
		return Analytics{}, err
	}
	result.CategoryTotals = buildCategoryTotals(categoryRows, subRows)

	result.PlannedVsSpent = []PlannedVsSpent{}
	if period.HasPlans() {
		var plans []store.PlanRow
		if period.Kind == PeriodYear {
			plans, err = s.plans.ListForYear(ctx, userID, period.Key)
		} else {
			plans, err = s.plans.ListForMonth(ctx, userID, period.Key)
		}
		if err != nil {
			return Analytics{}, err
		}
		result.PlannedVsSpent = mergePlans(result.CategoryTotals, plans)
	}
	return result, nil
}

func (s *AnalyticsService) mainCurrency(ctx context.Context, userID string, table rates.Table) (string, error) {
	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if code := strings.ToUpper(strings.TrimSpace(prefs.MainCurrency)); code != "" {
		return code, nil
	}
	return table.Base, nil
}

// convertBalances drops accounts whose converted balance would render as zero
// before anything is summed.
func convertBalances(accounts []models.Account, mainCurrency string, table rates.Table) ([]AccountBalance, decimal.Decimal, decimal.Decimal) {
	balances := make([]AccountBalance, 0, len(accounts))
	total := decimal.Zero
	available := decimal.Zero
	for _, account := range accounts {
		converted, ok := currency.ConvertChecked(account.Balance, account.DefaultCurrency, mainCurrency, table)
		if !ok {
			log.Printf("warning: no rate for %s -> %s, account %s shown unconverted", account.DefaultCurrency, mainCurrency, account.ID)
		}
		if money.IsDisplayZero(converted) {
			continue
		}
		balances = append(balances, AccountBalance{
			AccountID:   account.ID,
			Name:        account.Name,
			Currency:    account.DefaultCurrency,
			Native:      account.Balance,
			Converted:   converted,
			IsAvailable: account.IsAvailable,
		})
		total = total.Add(converted)
		if account.IsAvailable {
			available = available.Add(converted)
		}
	}
	return balances, total, available
}

// buildCategoryTotals keeps the store's ascending order and attaches each
// category's subcategory breakdown.
func buildCategoryTotals(categories []store.CategoryTotal, subcategories []store.SubcategoryTotal) []CategoryTotal {
	byCategory := map[string][]SubcategoryTotal{}
	for _, row := range subcategories {
		byCategory[row.CategoryID] = append(byCategory[row.CategoryID], SubcategoryTotal{
			SubcategoryID: row.SubcategoryID,
			Name:          row.SubcategoryName,
			Color:         row.Color,
			Total:         row.Total,
		})
	}
	out := make([]CategoryTotal, 0, len(categories))
	for _, row := range categories {
		subs := byCategory[row.CategoryID]
		if subs == nil {
			subs = []SubcategoryTotal{}
		}
		out = append(out, CategoryTotal{
			CategoryID:    row.CategoryID,
			Name:          row.CategoryName,
			Color:         row.Color,
			Total:         row.Total,
			Subcategories: subs,
		})
	}
	return out
}

// mergePlans builds planned-vs-spent. Plans are stored negative for expenses
// and compared as magnitudes. A category's planned amount is its own plans
// plus every subcategory plan beneath it.
func mergePlans(totals []CategoryTotal, plans []store.PlanRow) []PlannedVsSpent {
	entries := map[string]*PlannedVsSpent{}
	subSpent := map[string]map[string]decimal.Decimal{}
	for _, total := range totals {
		entries[total.CategoryID] = &PlannedVsSpent{PlanLine: PlanLine{ID: total.CategoryID, Name: total.Name, Spent: total.Total}}
		spent := map[string]decimal.Decimal{}
		for _, sub := range total.Subcategories {
			spent[nameKey(sub.Name)] = sub.Total
		}
		subSpent[total.CategoryID] = spent
	}
	entry := func(plan store.PlanRow) *PlannedVsSpent {
		e, ok := entries[plan.CategoryID]
		if !ok {
			e = &PlannedVsSpent{PlanLine: PlanLine{ID: plan.CategoryID, Name: plan.CategoryName}}
			entries[plan.CategoryID] = e
		}
		return e
	}

	for _, plan := range plans {
		if plan.SubcategoryID == nil {
			e := entry(plan)
			e.Planned = e.Planned.Add(plan.Amount.Abs())
		}
	}
	for _, plan := range plans {
		if plan.SubcategoryID == nil {
			continue
		}
		e := entry(plan)
		index := -1
		for i := range e.Subcategories {
			if e.Subcategories[i].ID == *plan.SubcategoryID {
				index = i
				break
			}
		}
		if index < 0 {
			name := ""
			if plan.SubcategoryName != nil {
				name = *plan.SubcategoryName
			}
			e.Subcategories = append(e.Subcategories, PlanLine{ID: *plan.SubcategoryID, Name: name})
			index = len(e.Subcategories) - 1
		}
		e.Subcategories[index].Planned = e.Subcategories[index].Planned.Add(plan.Amount.Abs())
	}

	out := make([]PlannedVsSpent, 0, len(entries))
	for _, e := range entries {
		for i := range e.Subcategories {
			sub := &e.Subcategories[i]
			sub.Spent = subSpent[e.ID][nameKey(sub.Name)]
			e.Planned = e.Planned.Add(sub.Planned)
			sub.settle()
		}
		e.settle()
		if e.Subcategories == nil {
			e.Subcategories = []PlanLine{}
		}
		sort.Slice(e.Subcategories, func(i, j int) bool { return e.Subcategories[i].Name < e.Subcategories[j].Name })
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *PlanLine) settle() {
	spent := l.Spent.Abs()
	l.Left = l.Planned.Sub(spent)
	l.IsOver = spent.GreaterThan(l.Planned)
}
