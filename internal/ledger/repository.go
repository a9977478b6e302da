package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger/m/domain"
)

// Query selects ledger facts. Zero times leave that side of the window open.
type Query struct {
	Code string
	From time.Time
	To   time.Time
	// NewestFirst orders by sold_at descending; otherwise chronological.
	NewestFirst bool
	// Limit of zero means no limit.
	Limit int
}

type saleRow struct {
	ID             string `db:"id"`
	ProductCode    string `db:"product_code"`
	ProductName    string `db:"product_name"`
	QuantitySold   int64  `db:"quantity_sold"`
	QuantityBefore int64  `db:"quantity_before"`
	QuantityAfter  int64  `db:"quantity_after"`
	Note           string `db:"note"`
	SoldAt         int64  `db:"sold_at"`
}

func rowFromSale(s domain.Sale) saleRow {
	return saleRow{
		ID:             s.ID,
		ProductCode:    s.ProductCode,
		ProductName:    s.ProductName,
		QuantitySold:   s.QuantitySold,
		QuantityBefore: s.QuantityBefore,
		QuantityAfter:  s.QuantityAfter,
		Note:           s.Note,
		SoldAt:         s.SoldAt.UnixNano(),
	}
}

func (r saleRow) toDomain() domain.Sale {
	return domain.Sale{
		ID:             r.ID,
		ProductCode:    r.ProductCode,
		ProductName:    r.ProductName,
		QuantitySold:   r.QuantitySold,
		QuantityBefore: r.QuantityBefore,
		QuantityAfter:  r.QuantityAfter,
		Note:           r.Note,
		SoldAt:         time.Unix(0, r.SoldAt).UTC(),
	}
}

// Repository is the append-only sales table.
type Repository struct {
	db *sqlx.DB
}

// NewRepository constructs Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts one sale fact. Facts are never updated or deleted.
func (r *Repository) Append(ctx context.Context, sale domain.Sale) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO sales
        (id, product_code, product_name, quantity_sold, quantity_before, quantity_after, note, sold_at)
        VALUES (:id, :product_code, :product_name, :quantity_sold, :quantity_before, :quantity_after, :note, :sold_at)`,
		rowFromSale(sale))
	if err != nil {
		return storageErr("append", err)
	}
	return nil
}

// List collects the facts matching q.
func (r *Repository) List(ctx context.Context, q Query) ([]domain.Sale, error) {
	sales := []domain.Sale{}
	err := r.Scan(ctx, q, func(s domain.Sale) error {
		sales = append(sales, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// Scan streams the facts matching q to fn, stopping at the first error fn returns.
// fn must not touch the database: on SQLite the scan holds the only connection.
func (r *Repository) Scan(ctx context.Context, q Query, fn func(domain.Sale) error) error {
	query, args := buildSelect(q)
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return storageErr("scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row saleRow
		if err := rows.StructScan(&row); err != nil {
			return storageErr("scan", err)
		}
		if err := fn(row.toDomain()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("scan", err)
	}
	return nil
}

func buildSelect(q Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Code != "" {
		clauses = append(clauses, "product_code = ?")
		args = append(args, q.Code)
	}
	if !q.From.IsZero() {
		clauses = append(clauses, "sold_at >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		clauses = append(clauses, "sold_at < ?")
		args = append(args, q.To.UnixNano())
	}

	query := `SELECT id, product_code, product_name, quantity_sold, quantity_before, quantity_after, note, sold_at FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if q.NewestFirst {
		query += " ORDER BY sold_at DESC, id DESC"
	} else {
		query += " ORDER BY sold_at ASC, id ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return query, args
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: ledger %s: %w", domain.ErrStorageUnavailable, op, err)
}
