package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"stockledger/m/domain"
)

// MonthlyTotals groups every fact by calendar month of soldAt, most recent month first.
func (s *Service) MonthlyTotals(ctx context.Context, limit int) ([]domain.MonthlyTotal, error) {
	if limit <= 0 {
		limit = DefaultMonthlyLimit
	}
	name := fmt.Sprintf("monthly:%s:%d", s.loc, limit)
	return cached(ctx, s, name, func(ctx context.Context) ([]domain.MonthlyTotal, error) {
		fold := newMonthlyFold(s.loc)
		if err := s.sales.Scan(ctx, Query{}, fold.add); err != nil {
			return nil, err
		}
		return fold.result(limit), nil
	})
}

// MonthlyProductBreakdown groups one month's facts by product, best sellers first.
func (s *Service) MonthlyProductBreakdown(ctx context.Context, month domain.Month) ([]domain.ProductBreakdown, error) {
	name := fmt.Sprintf("breakdown:%s:%s", s.loc, month)
	return cached(ctx, s, name, func(ctx context.Context) ([]domain.ProductBreakdown, error) {
		from, to := month.Window(s.loc)
		fold := newProductFold()
		if err := s.sales.Scan(ctx, Query{From: from, To: to}, fold.add); err != nil {
			return nil, err
		}
		return fold.result(), nil
	})
}

// Warm precomputes the default monthly totals and the current month's breakdown.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.MonthlyTotals(ctx, DefaultMonthlyLimit); err != nil {
		return err
	}
	_, err := s.MonthlyProductBreakdown(ctx, domain.MonthOf(s.clock.Now(), s.loc))
	return err
}

type monthlyAcc struct {
	total    domain.MonthlyTotal
	products map[string]struct{}
}

type monthlyFold struct {
	loc    *time.Location
	months map[domain.Month]*monthlyAcc
}

func newMonthlyFold(loc *time.Location) *monthlyFold {
	return &monthlyFold{loc: loc, months: make(map[domain.Month]*monthlyAcc)}
}

func (f *monthlyFold) add(sale domain.Sale) error {
	m := domain.MonthOf(sale.SoldAt, f.loc)
	acc, ok := f.months[m]
	if !ok {
		acc = &monthlyAcc{
			total:    domain.MonthlyTotal{Year: m.Year, Month: int(m.Month)},
			products: make(map[string]struct{}),
		}
		f.months[m] = acc
	}
	acc.total.TotalSold += sale.QuantitySold
	acc.total.TransactionCount++
	acc.products[sale.ProductCode] = struct{}{}
	return nil
}

func (f *monthlyFold) result(limit int) []domain.MonthlyTotal {
	keys := make([]domain.Month, 0, len(f.months))
	for m := range f.months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[j].Before(keys[i]) })
	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]domain.MonthlyTotal, 0, len(keys))
	for _, m := range keys {
		acc := f.months[m]
		acc.total.DistinctProductCount = int64(len(acc.products))
		out = append(out, acc.total)
	}
	return out
}

type productFold struct {
	byCode map[string]*domain.ProductBreakdown
}

func newProductFold() *productFold {
	return &productFold{byCode: make(map[string]*domain.ProductBreakdown)}
}

// add expects facts in chronological order so the first name seen wins.
func (f *productFold) add(sale domain.Sale) error {
	acc, ok := f.byCode[sale.ProductCode]
	if !ok {
		acc = &domain.ProductBreakdown{Code: sale.ProductCode, Name: sale.ProductName}
		f.byCode[sale.ProductCode] = acc
	}
	acc.TotalSold += sale.QuantitySold
	acc.TransactionCount++
	if sale.SoldAt.After(acc.LastSoldAt) {
		acc.LastSoldAt = sale.SoldAt
	}
	return nil
}

func (f *productFold) result() []domain.ProductBreakdown {
	out := make([]domain.ProductBreakdown, 0, len(f.byCode))
	for _, acc := range f.byCode {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSold != out[j].TotalSold {
			return out[i].TotalSold > out[j].TotalSold
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// cached serves a report from the cache for the current ledger generation, building it at
// most once per key across concurrent callers. Cache failures fall back to building directly.
func cached[T any](ctx context.Context, s *Service, name string, build func(context.Context) (T, error)) (T, error) {
	key := name
	if s.cache != nil {
		gen, err := s.cache.Generation(ctx)
		if err != nil {
			s.logger.Warn("report cache generation", slog.String("report", name), slog.Any("error", err))
			return build(ctx)
		}
		key = fmt.Sprintf("g%d:%s", gen, name)
		var hit T
		ok, err := s.cache.Load(ctx, key, &hit)
		if err != nil {
			s.logger.Warn("report cache load", slog.String("key", key), slog.Any("error", err))
		} else if ok {
			return hit, nil
		}
	}

	v, err, _ := s.builds.Do(key, func() (any, error) {
		out, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Store(ctx, key, out); err != nil {
				s.logger.Warn("report cache store", slog.String("key", key), slog.Any("error", err))
			}
		}
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
