package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/m/domain"
	"stockledger/m/internal/clock"
	"stockledger/m/internal/logging"
)

type fakeStock struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newFakeStock(products ...domain.Product) *fakeStock {
	f := &fakeStock{products: make(map[string]domain.Product)}
	for _, p := range products {
		f.products[p.Code] = p
	}
	return f
}

func (f *fakeStock) ReserveAndDecrement(_ context.Context, code string, amount int64) (domain.Decrement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[code]
	if !ok {
		return domain.Decrement{}, domain.ErrNotFound
	}
	if p.Quantity < amount {
		return domain.Decrement{}, &domain.InsufficientStockError{Code: code, Requested: amount, Available: p.Quantity}
	}
	before := p.Quantity
	p.Quantity -= amount
	f.products[code] = p
	return domain.Decrement{Product: p, Before: before, After: p.Quantity}, nil
}

func (f *fakeStock) quantity(code string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[code].Quantity
}

type memorySales struct {
	mu        sync.Mutex
	facts     []domain.Sale
	appendErr error
	scans     int
}

func (m *memorySales) Append(_ context.Context, sale domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.facts = append(m.facts, sale)
	return nil
}

func (m *memorySales) List(ctx context.Context, q Query) ([]domain.Sale, error) {
	out := []domain.Sale{}
	err := m.Scan(ctx, q, func(s domain.Sale) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

func (m *memorySales) Scan(_ context.Context, q Query, fn func(domain.Sale) error) error {
	m.mu.Lock()
	m.scans++
	facts := append([]domain.Sale(nil), m.facts...)
	m.mu.Unlock()

	sort.SliceStable(facts, func(i, j int) bool {
		if q.NewestFirst {
			return facts[i].SoldAt.After(facts[j].SoldAt)
		}
		return facts[i].SoldAt.Before(facts[j].SoldAt)
	})
	for _, s := range facts {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *memorySales) scanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

type memoryCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string][]byte
	genErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, c.genErr
}

func (c *memoryCache) Load(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memoryCache) Store(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Bump(context.Context) error {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	return nil
}

func TestRecordSaleAppendFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	stock := newFakeStock(domain.Product{Code: "X1", Name: "Bolt", Quantity: 10})
	sales := &memorySales{appendErr: fmt.Errorf("%w: disk full", domain.ErrStorageUnavailable)}
	var logs bytes.Buffer
	svc := NewService(stock, sales, Options{
		Clock:  clock.NewMock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
		Logger: logging.NewWithWriter(&logs, "json", "info"),
	})

	_, err := svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 4})
	require.ErrorIs(t, err, domain.ErrPartialSale)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	var partial *domain.PartialSaleError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "X1", partial.Code)
	assert.Equal(t, int64(4), partial.Amount)
	assert.Equal(t, int64(10), partial.Before)
	assert.Equal(t, int64(6), partial.After)
	assert.NotEmpty(t, partial.SaleID)

	assert.Equal(t, int64(6), stock.quantity("X1"), "decrement is not rolled back")
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), partial.SaleID)
}

func TestRecordSaleAppendSurvivesCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stock := &cancelAfterDecrement{
		fakeStock: newFakeStock(domain.Product{Code: "X1", Name: "Bolt", Quantity: 10}),
		cancel:    cancel,
	}
	sales := &cancelAwareSales{}
	svc := NewService(stock, sales, Options{})

	_, err := svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, sales.appended)
}

type cancelAfterDecrement struct {
	*fakeStock
	cancel context.CancelFunc
}

func (c *cancelAfterDecrement) ReserveAndDecrement(ctx context.Context, code string, amount int64) (domain.Decrement, error) {
	dec, err := c.fakeStock.ReserveAndDecrement(ctx, code, amount)
	c.cancel()
	return dec, err
}

type cancelAwareSales struct {
	memorySales
	appended int
}

func (c *cancelAwareSales) Append(ctx context.Context, sale domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.appended++
	return c.memorySales.Append(ctx, sale)
}

func TestStockErrorsWriteNoFact(t *testing.T) {
	ctx := context.Background()
	stock := newFakeStock(domain.Product{Code: "X1", Name: "Bolt", Quantity: 1})
	sales := &memorySales{}
	svc := NewService(stock, sales, Options{})

	_, err := svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 2})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	_, err = svc.RecordSale(ctx, domain.SaleRequest{Code: "ZZ", Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, sales.facts)
}

func TestReportsAreCachedPerGeneration(t *testing.T) {
	ctx := context.Background()
	stock := newFakeStock(domain.Product{Code: "X1", Name: "Bolt", Quantity: 100})
	sales := &memorySales{}
	cache := newMemoryCache()
	clk := clock.NewMock(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	svc := NewService(stock, sales, Options{Cache: cache, Clock: clk, Location: time.UTC})

	_, err := svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.gen)

	first, err := svc.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	again, err := svc.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, sales.scanCount(), "second read is served from cache")

	_, err = svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 3})
	require.NoError(t, err)

	fresh, err := svc.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, sales.scanCount())
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(5), fresh[0].TotalSold)
}

func TestReportsFallBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	sales := &memorySales{facts: []domain.Sale{{
		ID: "a", ProductCode: "X1", ProductName: "Bolt", QuantitySold: 2, QuantityBefore: 5, QuantityAfter: 3,
		SoldAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}}}
	cache := newMemoryCache()
	cache.genErr = errors.New("connection refused")
	svc := NewService(newFakeStock(), sales, Options{Cache: cache, Location: time.UTC})

	rows, err := svc.MonthlyProductBreakdown(ctx, domain.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].TotalSold)
	assert.Empty(t, cache.entries)
}

func TestWarmFillsCache(t *testing.T) {
	ctx := context.Background()
	sales := &memorySales{}
	cache := newMemoryCache()
	clk := clock.NewMock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(newFakeStock(), sales, Options{Cache: cache, Clock: clk, Location: time.UTC})

	require.NoError(t, svc.Warm(ctx))
	assert.Contains(t, cache.entries, fmt.Sprintf("g0:monthly:UTC:%d", DefaultMonthlyLimit))
	assert.Contains(t, cache.entries, "g0:breakdown:UTC:2024-06")
}

func TestAuditReportsBrokenFacts(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sales := &memorySales{facts: []domain.Sale{
		{ID: "1", ProductCode: "X1", QuantitySold: 2, QuantityBefore: 10, QuantityAfter: 8, SoldAt: at},
		{ID: "2", ProductCode: "X1", QuantitySold: 2, QuantityBefore: 8, QuantityAfter: 7, SoldAt: at.Add(time.Minute)},
		{ID: "3", ProductCode: "Y2", QuantitySold: 0, QuantityBefore: 3, QuantityAfter: 3, SoldAt: at.Add(2 * time.Minute)},
		{ID: "4", ProductCode: "X1", QuantitySold: 1, QuantityBefore: 7, QuantityAfter: 6, SoldAt: at.Add(3 * time.Minute)},
	}}
	svc := NewService(newFakeStock(), sales, Options{})

	report, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Facts)
	assert.Equal(t, int64(2), report.Products)
	require.Len(t, report.Violations, 2)
	assert.Equal(t, "2", report.Violations[0].SaleID)
	assert.Equal(t, "3", report.Violations[1].SaleID)
	assert.Empty(t, report.Discontinuities)
}

func TestCheckFact(t *testing.T) {
	tests := []struct {
		name string
		sale domain.Sale
		ok   bool
	}{
		{"consistent", domain.Sale{QuantitySold: 3, QuantityBefore: 10, QuantityAfter: 7}, true},
		{"zero sold", domain.Sale{QuantitySold: 0, QuantityBefore: 1, QuantityAfter: 1}, false},
		{"negative after", domain.Sale{QuantitySold: 3, QuantityBefore: 2, QuantityAfter: -1}, false},
		{"wrong arithmetic", domain.Sale{QuantitySold: 1, QuantityBefore: 5, QuantityAfter: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, checkFact(tt.sale) == "")
		})
	}
}
