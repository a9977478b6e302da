package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stockledger/m/internal/migrations"
	"stockledger/m/internal/testutil"
)

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, migrations.Run(context.Background(), db))
}

func TestSchemaRejectsNegativeQuantity(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := db.Exec(`INSERT INTO products (code, name, quantity, created_at) VALUES ('A', 'a', -1, 0)`)
	require.Error(t, err)
}

func TestSchemaRejectsInconsistentSale(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := db.Exec(`INSERT INTO sales (id, product_code, product_name, quantity_sold, quantity_before, quantity_after, sold_at)
        VALUES ('s1', 'A', 'a', 2, 10, 9, 0)`)
	require.Error(t, err)
}
