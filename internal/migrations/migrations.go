package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Timestamps are Unix nanoseconds so the same schema runs on SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
            code TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
            location TEXT NOT NULL DEFAULT '',
            created_at BIGINT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS sales (
            id TEXT PRIMARY KEY,
            product_code TEXT NOT NULL,
            product_name TEXT NOT NULL,
            quantity_sold BIGINT NOT NULL CHECK (quantity_sold >= 1),
            quantity_before BIGINT NOT NULL,
            quantity_after BIGINT NOT NULL CHECK (quantity_after >= 0),
            note TEXT NOT NULL DEFAULT '',
            sold_at BIGINT NOT NULL,
            CHECK (quantity_after = quantity_before - quantity_sold)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales (sold_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_code_sold_at ON sales (product_code, sold_at);`,
}

// Run creates the products table and the sales ledger.
func Run(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
