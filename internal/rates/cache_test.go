package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func rateServer(t *testing.T, status int, body string) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestCacheFetchesAndMemoizes(t *testing.T) {
	server, hits := rateServer(t, http.StatusOK, `{"result":"success","rates":{"USD":1,"EUR":0.9,"AMD":400,"XYZ":3}}`)
	cache := NewCache(Options{URL: server.URL, Base: "USD", TTL: time.Hour})
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	table := cache.Rates(context.Background())
	if rate, _ := table.Lookup("EUR"); !rate.Equal(decimal.RequireFromString("0.9")) {
		t.Fatalf("expected fetched EUR rate, got %s", rate)
	}
	if !table.Has("XYZ") {
		t.Fatal("expected currencies outside the fallback table to be kept")
	}
	now = now.Add(59 * time.Minute)
	cache.Rates(context.Background())
	if atomic.LoadInt64(hits) != 1 {
		t.Fatalf("expected memoized table, got %d fetches", *hits)
	}
	now = now.Add(2 * time.Minute)
	cache.Rates(context.Background())
	if atomic.LoadInt64(hits) != 2 {
		t.Fatalf("expected refresh after ttl, got %d fetches", *hits)
	}
}

func TestCacheRequestsConfiguredBase(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":{"EUR":1,"USD":1.1}}`))
	}))
	t.Cleanup(server.Close)

	table := NewCache(Options{URL: server.URL + "/latest/{base}", Base: "eur"}).Rates(context.Background())
	if path != "/latest/EUR" {
		t.Fatalf("expected EUR-based request, got %s", path)
	}
	if table.Base != "EUR" {
		t.Fatalf("expected EUR base, got %s", table.Base)
	}
	if rate, _ := table.Lookup("USD"); !rate.Equal(decimal.RequireFromString("1.1")) {
		t.Fatalf("expected fetched USD rate, got %s", rate)
	}
}

func TestCacheFallsBackOnServerError(t *testing.T) {
	server, hits := rateServer(t, http.StatusInternalServerError, `{}`)
	cache := NewCache(Options{URL: server.URL})
	table := cache.Rates(context.Background())
	want := Fallback("USD")
	if len(table.Rates) != len(want.Rates) {
		t.Fatalf("expected fallback table, got %v", table.Rates)
	}
	if _, loaded := cache.Snapshot(); loaded {
		t.Fatal("failed refresh must not populate the cache")
	}
	cache.Rates(context.Background())
	if atomic.LoadInt64(hits) != 2 {
		t.Fatalf("expected a new attempt after failure, got %d", *hits)
	}
}

func TestCacheFallsBackOnMalformedBody(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"rates":`)
	table := NewCache(Options{URL: server.URL}).Rates(context.Background())
	if rate, _ := table.Lookup("EUR"); !rate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("expected fallback EUR, got %s", rate)
	}
}

func TestCacheFallsBackWhenPathMissing(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"data":{"quotes":{"EUR":0.5}}}`)
	table := NewCache(Options{URL: server.URL}).Rates(context.Background())
	if rate, _ := table.Lookup("EUR"); !rate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("expected fallback EUR, got %s", rate)
	}
}

func TestCacheCustomJSONPath(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"data":{"quotes":{"EUR":0.5}}}`)
	table := NewCache(Options{URL: server.URL, JSONPath: "$.data.quotes"}).Rates(context.Background())
	if rate, _ := table.Lookup("EUR"); !rate.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected EUR from custom path, got %s", rate)
	}
}

func TestCacheReplacesInvalidValues(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"rates":{"USD":3,"EUR":0,"GBP":-1,"AMD":"n/a","JPY":151.5}}`)
	table := NewCache(Options{URL: server.URL}).Rates(context.Background())
	cases := map[string]string{"USD": "1", "EUR": "0.92", "GBP": "0.79", "AMD": "387", "JPY": "151.5"}
	for code, want := range cases {
		rate, ok := table.Lookup(code)
		if !ok || !rate.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("%s: expected %s, got %s", code, want, rate)
		}
	}
}

func TestCacheUnreachableSource(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{}`)
	url := server.URL
	server.Close()
	table := NewCache(Options{URL: url, Timeout: 200 * time.Millisecond}).Rates(context.Background())
	if !table.Has("USD") || !table.Has("EUR") {
		t.Fatalf("expected fallback table, got %v", table.Rates)
	}
}

func TestCacheWithoutURLUsesFallback(t *testing.T) {
	table := NewCache(Options{Base: "EUR"}).Rates(context.Background())
	base, _ := table.Lookup("EUR")
	if !base.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected base to map to 1, got %s", base)
	}
	usd, _ := table.Lookup("USD")
	if !usd.Equal(decimal.NewFromInt(1).Div(decimal.RequireFromString("0.92"))) {
		t.Fatalf("expected USD re-based on EUR, got %s", usd)
	}
}

func TestCacheInvalidate(t *testing.T) {
	server, hits := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.9}}`)
	cache := NewCache(Options{URL: server.URL})
	cache.Rates(context.Background())
	cache.Invalidate()
	cache.Rates(context.Background())
	if atomic.LoadInt64(hits) != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", *hits)
	}
}

func TestCacheConcurrentRefresh(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.9}}`)
	cache := NewCache(Options{URL: server.URL})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table := cache.Rates(context.Background())
			if !table.Has("EUR") {
				t.Errorf("expected EUR in table")
			}
		}()
	}
	wg.Wait()
	if _, loaded := cache.Snapshot(); !loaded {
		t.Fatal("expected cache to be populated")
	}
}
