package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"finflow/internal/metrics"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

// Provider hands out the current rate table. Implementations never fail; they
// degrade to fallback rates instead.
type Provider interface {
	Rates(ctx context.Context) Table
}

// Options configure a Cache. A "{base}" placeholder in URL is replaced with
// Base so the source quotes against the same currency as the fallback table.
type Options struct {
	URL      string
	JSONPath string
	Base     string
	Timeout  time.Duration
	TTL      time.Duration
	Client   *http.Client
}

// Cache memoizes the remote table for TTL. Concurrent refreshes are not
// coalesced; the last successful one wins.
type Cache struct {
	client  *http.Client
	url     string
	path    string
	base    string
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	current Table
	loaded  bool
}

func NewCache(opts Options) *Cache {
	if opts.Base == "" {
		opts.Base = "USD"
	}
	if opts.JSONPath == "" {
		opts.JSONPath = "$.rates"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	base := strings.ToUpper(opts.Base)
	return &Cache{
		client:  client,
		url:     strings.ReplaceAll(opts.URL, "{base}", base),
		path:    opts.JSONPath,
		base:    base,
		timeout: opts.Timeout,
		ttl:     opts.TTL,
		now:     time.Now,
	}
}

func (c *Cache) Rates(ctx context.Context) Table {
	if table, ok := c.fresh(); ok {
		return table
	}
	if c.url == "" {
		return Fallback(c.base)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	fetched, err := c.fetch(fetchCtx)
	if err != nil {
		log.Printf("warning: exchange rate refresh failed, using fallback rates: %v", err)
		metrics.RateRefreshes.WithLabelValues("fallback").Inc()
		return Fallback(c.base)
	}
	table := merge(c.base, fetched, c.now())
	c.mu.Lock()
	c.current = table
	c.loaded = true
	c.mu.Unlock()
	metrics.RateRefreshes.WithLabelValues("success").Inc()
	return table
}

// Snapshot returns the cached table without refreshing it.
func (c *Cache) Snapshot() (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.loaded
}

// Invalidate forces the next Rates call to hit the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (c *Cache) fresh() (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.now().Sub(c.current.FetchedAt) >= c.ttl {
		return Table{}, false
	}
	return c.current, true
}

func (c *Cache) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v/%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	raw, err := jsonpath.Get(c.path, body)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c.path, err)
	}
	object, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("select %s: expected an object, got %T", c.path, raw)
	}
	out := make(map[string]float64, len(object))
	for code, value := range object {
		number, ok := value.(float64)
		if !ok {
			continue
		}
		out[strings.ToUpper(code)] = number
	}
	return out, nil
}

// merge overlays valid fetched values on the fallback table. Any value that is
// not a positive finite number keeps the fallback.
func merge(base string, fetched map[string]float64, fetchedAt time.Time) Table {
	table := Fallback(base)
	for code, value := range fetched {
		if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
			if _, ok := table.Rates[code]; ok {
				log.Printf("warning: rate for %s is %v, keeping fallback", code, value)
			}
			continue
		}
		table.Rates[code] = decimal.NewFromFloat(value)
	}
	table.Rates[base] = decimal.NewFromInt(1)
	table.FetchedAt = fetchedAt
	return table
}
