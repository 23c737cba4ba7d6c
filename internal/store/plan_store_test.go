package store

import (
	"context"
	"strings"
	"testing"
)

func TestPlanStoreListForMonth(t *testing.T) {
	store := NewPlanStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "p.month = $2") || !strings.Contains(query, "LEFT JOIN subcategories") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != "2025-01" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]PlanRow) = []PlanRow{{ID: "plan-1"}}
			return nil
		},
	})
	rows, err := store.ListForMonth(context.Background(), "user-1", "2025-01")
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected result: %#v %v", rows, err)
	}
}

func TestPlanStoreListForYearMatchesPrefix(t *testing.T) {
	store := NewPlanStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "p.month LIKE $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[1] != "2025-%" {
				t.Fatalf("unexpected pattern: %#v", args[1])
			}
			return nil
		},
	})
	if _, err := store.ListForYear(context.Background(), "user-1", "2025"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
