// Package ledger records completed sales as immutable facts and rolls them up into reports.
// Reports read the ledger only, never current stock.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"stockledger/m/domain"
	"stockledger/m/internal/clock"
	"stockledger/m/internal/logging"
)

const (
	// DefaultListLimit matches the recent-sales view.
	DefaultListLimit = 200
	// MaxListLimit caps a single listing.
	MaxListLimit = 1000
	// DefaultMonthlyLimit is how many months MonthlyTotals returns by default.
	DefaultMonthlyLimit = 24

	defaultAppendTimeout = 5 * time.Second
)

// StockStore is the part of the stock store a sale needs.
type StockStore interface {
	ReserveAndDecrement(ctx context.Context, code string, amount int64) (domain.Decrement, error)
}

// SaleRepository persists and streams ledger facts.
type SaleRepository interface {
	Append(ctx context.Context, sale domain.Sale) error
	List(ctx context.Context, q Query) ([]domain.Sale, error)
	Scan(ctx context.Context, q Query, fn func(domain.Sale) error) error
}

// ReportCache stores computed reports keyed by ledger generation.
// Bump is called after every append so stale generations are never read again.
type ReportCache interface {
	Generation(ctx context.Context) (int64, error)
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, value any) error
	Bump(ctx context.Context) error
}

// Options groups optional settings.
type Options struct {
	Cache         ReportCache
	Clock         clock.Clock
	Location      *time.Location
	Logger        *slog.Logger
	AppendTimeout time.Duration
}

// Service coordinates sales and ledger reports.
type Service struct {
	stock         StockStore
	sales         SaleRepository
	cache         ReportCache
	clock         clock.Clock
	loc           *time.Location
	logger        *slog.Logger
	appendTimeout time.Duration
	builds        singleflight.Group
}

// NewService builds Service.
func NewService(stock StockStore, sales SaleRepository, opts Options) *Service {
	s := &Service{
		stock:         stock,
		sales:         sales,
		cache:         opts.Cache,
		clock:         opts.Clock,
		loc:           opts.Location,
		logger:        opts.Logger,
		appendTimeout: opts.AppendTimeout,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.appendTimeout <= 0 {
		s.appendTimeout = defaultAppendTimeout
	}
	return s
}

// Location is the time zone calendar months are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// RecordSale decrements stock and appends the matching fact.
// Stock errors are returned without writing anything. If the append fails after the
// decrement committed, a *domain.PartialSaleError is returned and nothing is rolled back.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	req, err := req.Normalize()
	if err != nil {
		return domain.Sale{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Sale{}, fmt.Errorf("ledger: sale id: %w", err)
	}

	dec, err := s.stock.ReserveAndDecrement(ctx, req.Code, req.Amount)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:             id.String(),
		ProductCode:    dec.Product.Code,
		ProductName:    dec.Product.Name,
		QuantitySold:   req.Amount,
		QuantityBefore: dec.Before,
		QuantityAfter:  dec.After,
		Note:           req.Note,
		SoldAt:         s.clock.Now().UTC(),
	}

	// The decrement is already committed; a caller that gives up now must not also lose the fact.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.appendTimeout)
	defer cancel()
	if err := s.sales.Append(appendCtx, sale); err != nil {
		partial := &domain.PartialSaleError{
			SaleID: sale.ID,
			Code:   sale.ProductCode,
			Amount: sale.QuantitySold,
			Before: sale.QuantityBefore,
			After:  sale.QuantityAfter,
			Err:    err,
		}
		s.logger.Error("partial sale: stock decremented without ledger fact",
			slog.String("sale_id", sale.ID),
			slog.String("code", sale.ProductCode),
			slog.Int64("amount", sale.QuantitySold),
			slog.Int64("before", sale.QuantityBefore),
			slog.Int64("after", sale.QuantityAfter),
			slog.Any("error", err))
		return domain.Sale{}, partial
	}

	if s.cache != nil {
		if err := s.cache.Bump(appendCtx); err != nil {
			s.logger.Warn("report cache bump", slog.Any("error", err))
		}
	}
	s.logger.Info("sale recorded",
		slog.String("sale_id", sale.ID),
		slog.String("code", sale.ProductCode),
		slog.Int64("amount", sale.QuantitySold),
		slog.Int64("after", sale.QuantityAfter))
	return sale, nil
}

// ListSales returns facts newest first, optionally restricted to one code and one month.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter, limit int) ([]domain.Sale, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := Query{Code: domain.NormalizeCode(filter.Code), NewestFirst: true, Limit: limit}
	if filter.Month != nil {
		q.From, q.To = filter.Month.Window(s.loc)
	}
	return s.sales.List(ctx, q)
}
