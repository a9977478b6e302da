// Package stock owns current product state and the non-negative quantity invariant.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger/m/domain"
	"stockledger/m/internal/clock"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
	// decrementAttempts bounds retries when a refused decrement re-reads enough stock.
	decrementAttempts = 3
)

const productColumns = `code, name, quantity, location, created_at`

type productRow struct {
	Code      string `db:"code"`
	Name      string `db:"name"`
	Quantity  int64  `db:"quantity"`
	Location  string `db:"location"`
	CreatedAt int64  `db:"created_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		Code:      r.Code,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Location:  r.Location,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Store persists products with sqlx.
type Store struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewStore constructs a Store.
func NewStore(db *sqlx.DB, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{db: db, clock: clk}
}

// Lookup returns the product with the given code, case-insensitively.
func (s *Store) Lookup(ctx context.Context, code string) (domain.Product, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Product{}, domain.Invalidf("code is required")
	}
	var row productRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
	}
	if err != nil {
		return domain.Product{}, storageErr("lookup", err)
	}
	return row.toDomain(), nil
}

// List returns products newest first, optionally filtered by a code or name fragment.
func (s *Store) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if term := strings.TrimSpace(filter.Search); term != "" {
		query += ` WHERE code LIKE ? OR LOWER(name) LIKE ?`
		args = append(args, "%"+domain.NormalizeCode(term)+"%", "%"+strings.ToLower(term)+"%")
	}
	query += ` ORDER BY created_at DESC, code LIMIT ?`
	args = append(args, limit)

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, storageErr("list", err)
	}
	products := make([]domain.Product, len(rows))
	for i, row := range rows {
		products[i] = row.toDomain()
	}
	return products, nil
}

// Create inserts a new product. The code must not already exist.
func (s *Store) Create(ctx context.Context, input domain.NewProduct) (domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return domain.Product{}, err
	}
	row := productRow{
		Code:      input.Code,
		Name:      input.Name,
		Quantity:  input.Quantity,
		Location:  input.Location,
		CreatedAt: s.clock.Now().UnixNano(),
	}
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO products (`+productColumns+`)
        VALUES (:code, :name, :quantity, :location, :created_at)
        ON CONFLICT (code) DO NOTHING`, row)
	if err != nil {
		return domain.Product{}, storageErr("create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, storageErr("create", err)
	}
	if n == 0 {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrDuplicateCode, input.Code)
	}
	return row.toDomain(), nil
}

// SetQuantity overwrites the on-hand quantity.
func (s *Store) SetQuantity(ctx context.Context, code string, quantity int64) (domain.Product, error) {
	return s.Update(ctx, code, domain.ProductUpdate{Quantity: &quantity})
}

// Update applies an administrative edit of name, quantity or location.
func (s *Store) Update(ctx context.Context, code string, update domain.ProductUpdate) (domain.Product, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Product{}, domain.Invalidf("code is required")
	}
	update, err := update.Normalize()
	if err != nil {
		return domain.Product{}, err
	}

	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *update.Quantity)
	}
	if update.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *update.Location)
	}
	args = append(args, code)

	query := `UPDATE products SET ` + strings.Join(sets, ", ") + ` WHERE code = ? RETURNING ` + productColumns
	var row productRow
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
	}
	if err != nil {
		return domain.Product{}, storageErr("update", err)
	}
	return row.toDomain(), nil
}

// Remove hard-deletes a product and returns what was deleted. Ledger facts are untouched.
func (s *Store) Remove(ctx context.Context, code string) (domain.Product, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Product{}, domain.Invalidf("code is required")
	}
	var row productRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`DELETE FROM products WHERE code = ? RETURNING `+productColumns), code).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
	}
	if err != nil {
		return domain.Product{}, storageErr("remove", err)
	}
	return row.toDomain(), nil
}

// ReserveAndDecrement subtracts amount from the product's quantity only if enough is on hand.
// The check and the write are one conditional UPDATE, so concurrent callers cannot both pass
// the check against the same stale quantity.
func (s *Store) ReserveAndDecrement(ctx context.Context, code string, amount int64) (domain.Decrement, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Decrement{}, domain.Invalidf("code is required")
	}
	if amount < 1 {
		return domain.Decrement{}, domain.Invalidf("amount must be at least 1")
	}

	query := s.db.Rebind(`UPDATE products SET quantity = quantity - ?
        WHERE code = ? AND quantity >= ?
        RETURNING ` + productColumns)

	var available int64
	for attempt := 0; attempt < decrementAttempts; attempt++ {
		var row productRow
		err := s.db.QueryRowxContext(ctx, query, amount, code, amount).StructScan(&row)
		if err == nil {
			product := row.toDomain()
			return domain.Decrement{Product: product, Before: product.Quantity + amount, After: product.Quantity}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Decrement{}, storageErr("decrement", err)
		}

		// Nothing matched: the product is missing or short. Read once to tell which.
		current, err := s.Lookup(ctx, code)
		if err != nil {
			return domain.Decrement{}, err
		}
		available = current.Quantity
		if available < amount {
			break
		}
		// Stock was replenished between the two statements; try the conditional update again.
	}
	return domain.Decrement{}, &domain.InsufficientStockError{Code: code, Requested: amount, Available: available}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: stock %s: %w", domain.ErrStorageUnavailable, op, err)
}
