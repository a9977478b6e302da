package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/m/domain"
	"stockledger/m/internal/clock"
	"stockledger/m/internal/ledger"
	"stockledger/m/internal/stock"
	"stockledger/m/internal/testutil"
)

type suite struct {
	store  *stock.Store
	sales  *ledger.Repository
	ledger *ledger.Service
	clock  *clock.Mock
}

func setup(t *testing.T) *suite {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewMock(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))
	store := stock.NewStore(db, clk)
	sales := ledger.NewRepository(db)
	svc := ledger.NewService(store, sales, ledger.Options{Clock: clk, Location: time.UTC})
	return &suite{store: store, sales: sales, ledger: svc, clock: clk}
}

func (s *suite) product(t *testing.T, code, name string, qty int64) {
	t.Helper()
	_, err := s.store.Create(context.Background(), domain.NewProduct{Code: code, Name: name, Quantity: qty})
	require.NoError(t, err)
}

func (s *suite) sell(t *testing.T, at time.Time, code string, amount int64) domain.Sale {
	t.Helper()
	s.clock.Set(at)
	sale, err := s.ledger.RecordSale(context.Background(), domain.SaleRequest{Code: code, Amount: amount})
	require.NoError(t, err)
	return sale
}

func (s *suite) allSales(t *testing.T) []domain.Sale {
	t.Helper()
	sales, err := s.sales.List(context.Background(), ledger.Query{})
	require.NoError(t, err)
	return sales
}

func TestRecordSaleDecrementsAndAppends(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "X1", "Bolt", 10)

	sale, err := s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "x1", Amount: 3, Note: " counter "})
	require.NoError(t, err)
	assert.Equal(t, "X1", sale.ProductCode)
	assert.Equal(t, "Bolt", sale.ProductName)
	assert.Equal(t, int64(3), sale.QuantitySold)
	assert.Equal(t, int64(10), sale.QuantityBefore)
	assert.Equal(t, int64(7), sale.QuantityAfter)
	assert.Equal(t, "counter", sale.Note)
	assert.True(t, sale.SoldAt.Equal(s.clock.Now()))
	assert.NotEmpty(t, sale.ID)

	p, err := s.store.Lookup(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Quantity)

	facts := s.allSales(t)
	require.Len(t, facts, 1)
	assert.Equal(t, sale, facts[0])
}

func TestRecordSaleInsufficientStockWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "X1", "Bolt", 2)

	_, err := s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 5})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var ins *domain.InsufficientStockError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, int64(2), ins.Available)

	p, err := s.store.Lookup(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Quantity)
	assert.Empty(t, s.allSales(t))
}

func TestRecordSaleRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "X1", "Bolt", 2)

	_, err := s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 0})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.ledger.RecordSale(ctx, domain.SaleRequest{Code: " ", Amount: 1})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "NOPE", Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, s.allSales(t))
}

func TestConcurrentSalesExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "X1", "Bolt", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 6})
		}(i)
	}
	wg.Wait()

	if errs[0] == nil {
		require.ErrorIs(t, errs[1], domain.ErrInsufficientStock)
	} else {
		require.ErrorIs(t, errs[0], domain.ErrInsufficientStock)
		require.NoError(t, errs[1])
	}

	p, err := s.store.Lookup(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Quantity)
	require.Len(t, s.allSales(t), 1)
}

func TestConcurrentSalesMatchLedger(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	const initial = 30
	s.product(t, "X1", "Bolt", initial)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := s.ledger.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: amount})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		}(int64(i%3 + 1))
	}
	wg.Wait()

	var sold int64
	for _, f := range s.allSales(t) {
		assert.Equal(t, f.QuantityBefore-f.QuantitySold, f.QuantityAfter)
		assert.GreaterOrEqual(t, f.QuantityAfter, int64(0))
		sold += f.QuantitySold
	}
	p, err := s.store.Lookup(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, initial-sold, p.Quantity)
}

func TestMonthlyTotals(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 100)
	s.product(t, "B2", "Belt", 100)

	jan := func(day int) time.Time { return time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC) }
	s.sell(t, jan(2), "A1", 5)
	s.sell(t, jan(9), "B2", 3)
	s.sell(t, jan(15), "A1", 4)
	s.sell(t, jan(31), "B2", 3)
	s.sell(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "A1", 2)
	s.sell(t, time.Date(2023, 11, 30, 23, 59, 0, 0, time.UTC), "A1", 1)

	totals, err := s.ledger.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, domain.MonthlyTotal{Year: 2024, Month: 2, TotalSold: 2, TransactionCount: 1, DistinctProductCount: 1}, totals[0])
	assert.Equal(t, domain.MonthlyTotal{Year: 2024, Month: 1, TotalSold: 15, TransactionCount: 4, DistinctProductCount: 2}, totals[1])
	assert.Equal(t, domain.MonthlyTotal{Year: 2023, Month: 11, TotalSold: 1, TransactionCount: 1, DistinctProductCount: 1}, totals[2])

	limited, err := s.ledger.MonthlyTotals(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 2, limited[0].Month)
	assert.Equal(t, 1, limited[1].Month)
}

func TestMonthlyTotalsEmptyLedger(t *testing.T) {
	s := setup(t)
	totals, err := s.ledger.MonthlyTotals(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, totals)
	assert.Empty(t, totals)
}

func TestMonthlyTotalsUseLedgerTimezone(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clk := clock.NewMock(time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC))
	store := stock.NewStore(db, clk)
	tz := time.FixedZone("UZT", 5*60*60)
	svc := ledger.NewService(store, ledger.NewRepository(db), ledger.Options{Clock: clk, Location: tz})
	_, err := store.Create(ctx, domain.NewProduct{Code: "X1", Name: "Bolt", Quantity: 5})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, domain.SaleRequest{Code: "X1", Amount: 1})
	require.NoError(t, err)

	totals, err := svc.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 2024, totals[0].Year)
	assert.Equal(t, 2, totals[0].Month)
}

func TestMonthlyProductBreakdownSurvivesRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 100)
	s.product(t, "B2", "Belt", 100)

	s.sell(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), "A1", 2)
	s.sell(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), "B2", 7)
	renamed := "Oil filter"
	_, err := s.store.Update(ctx, "A1", domain.ProductUpdate{Name: &renamed})
	require.NoError(t, err)
	last := s.sell(t, time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC), "A1", 3)
	s.sell(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), "A1", 50)

	_, err = s.store.Remove(ctx, "B2")
	require.NoError(t, err)

	rows, err := s.ledger.MonthlyProductBreakdown(ctx, domain.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "B2", rows[0].Code)
	assert.Equal(t, "Belt", rows[0].Name)
	assert.Equal(t, int64(7), rows[0].TotalSold)
	assert.Equal(t, int64(1), rows[0].TransactionCount)

	assert.Equal(t, "A1", rows[1].Code)
	assert.Equal(t, "Filter", rows[1].Name, "first name seen in the window wins")
	assert.Equal(t, int64(5), rows[1].TotalSold)
	assert.Equal(t, int64(2), rows[1].TransactionCount)
	assert.True(t, rows[1].LastSoldAt.Equal(last.SoldAt))

	empty, err := s.ledger.MonthlyProductBreakdown(ctx, domain.Month{Year: 2022, Month: time.May})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReportsIgnoreStockEdits(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 10)
	s.sell(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), "A1", 4)

	before, err := s.ledger.MonthlyTotals(ctx, 0)
	require.NoError(t, err)

	_, err = s.store.SetQuantity(ctx, "A1", 500)
	require.NoError(t, err)
	_, err = s.store.Remove(ctx, "A1")
	require.NoError(t, err)

	after, err := s.ledger.MonthlyTotals(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestListSales(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 100)
	s.product(t, "B2", "Belt", 100)

	first := s.sell(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), "A1", 1)
	second := s.sell(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), "B2", 1)
	third := s.sell(t, time.Date(2024, 2, 4, 9, 0, 0, 0, time.UTC), "A1", 1)

	all, err := s.ledger.ListSales(ctx, domain.SaleFilter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(all))

	byCode, err := s.ledger.ListSales(ctx, domain.SaleFilter{Code: "a1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, first.ID}, ids(byCode))

	jan := domain.Month{Year: 2024, Month: time.January}
	inJan, err := s.ledger.ListSales(ctx, domain.SaleFilter{Month: &jan}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, ids(inJan))

	both, err := s.ledger.ListSales(ctx, domain.SaleFilter{Code: "A1", Month: &jan}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(both))

	one, err := s.ledger.ListSales(ctx, domain.SaleFilter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID}, ids(one))
}

func TestExportWindow(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 100)
	s.product(t, "B2", "Belt", 100)

	s.sell(t, time.Date(2024, 1, 3, 9, 15, 0, 0, time.UTC), "A1", 2)
	s.sell(t, time.Date(2024, 1, 4, 17, 30, 5, 0, time.UTC), "B2", 1)
	s.sell(t, time.Date(2024, 2, 4, 9, 0, 0, 0, time.UTC), "A1", 4)

	jan := domain.Month{Year: 2024, Month: time.January}
	export, err := s.ledger.ExportWindow(ctx, &jan)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", export.Month)
	assert.Equal(t, 2, export.Count)
	assert.Equal(t, domain.ExportRow{
		Date: "2024-01-04", Time: "17:30:05",
		ProductCode: "B2", ProductName: "Belt",
		QuantitySold: 1, QuantityBefore: 100, QuantityAfter: 99,
	}, export.Rows[0])
	assert.Equal(t, "A1", export.Rows[1].ProductCode)

	all, err := s.ledger.ExportWindow(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "all", all.Month)
	assert.Equal(t, 3, all.Count)

	summary := ledger.ExportSummary(all.Rows)
	require.Len(t, summary, 2)
	assert.Equal(t, domain.ProductSummary{Code: "A1", Name: "Filter", TotalSold: 6, TransactionCount: 2}, summary[0])
	assert.Equal(t, domain.ProductSummary{Code: "B2", Name: "Belt", TotalSold: 1, TransactionCount: 1}, summary[1])
}

func TestAuditFindsManualEdits(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.product(t, "A1", "Filter", 10)
	s.product(t, "B2", "Belt", 10)

	s.sell(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), "A1", 2)
	s.sell(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), "B2", 1)
	_, err := s.store.SetQuantity(ctx, "A1", 20)
	require.NoError(t, err)
	s.sell(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), "A1", 1)
	s.sell(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), "B2", 1)

	report, err := s.ledger.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Facts)
	assert.Equal(t, int64(2), report.Products)
	assert.Empty(t, report.Violations)
	require.Len(t, report.Discontinuities, 1)
	gap := report.Discontinuities[0]
	assert.Equal(t, "A1", gap.Code)
	assert.Equal(t, int64(8), gap.PrevAfter)
	assert.Equal(t, int64(20), gap.Before)
	assert.Equal(t, int64(12), gap.Delta)
}

func ids(sales []domain.Sale) []string {
	out := make([]string, len(sales))
	for i, s := range sales {
		out[i] = s.ID
	}
	return out
}
