package domain

import "time"

// MonthlyTotal is the rollup of all sales in one calendar month.
type MonthlyTotal struct {
	Year                 int   `json:"year"`
	Month                int   `json:"month"`
	TotalSold            int64 `json:"total_sold"`
	TransactionCount     int64 `json:"transaction_count"`
	DistinctProductCount int64 `json:"distinct_product_count"`
}

// ProductBreakdown is the per-product rollup inside one month.
type ProductBreakdown struct {
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	TotalSold        int64     `json:"total_sold"`
	TransactionCount int64     `json:"transaction_count"`
	LastSoldAt       time.Time `json:"last_sold_at"`
}

// ExportRow is a flat, denormalized sale row for spreadsheet rendering.
type ExportRow struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	ProductCode    string `json:"product_code"`
	ProductName    string `json:"product_name"`
	QuantitySold   int64  `json:"quantity_sold"`
	QuantityBefore int64  `json:"quantity_before"`
	QuantityAfter  int64  `json:"quantity_after"`
	Note           string `json:"note"`
}

// ProductSummary totals export rows per product.
type ProductSummary struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	TotalSold        int64  `json:"total_sold"`
	TransactionCount int64  `json:"transaction_count"`
}

// Export is one export window: its label and rows.
type Export struct {
	Month       string      `json:"month"`
	GeneratedAt time.Time   `json:"generated_at"`
	Count       int         `json:"count"`
	Rows        []ExportRow `json:"rows"`
}

// AuditViolation is a ledger fact whose quantities do not add up.
type AuditViolation struct {
	SaleID string `json:"sale_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// AuditDiscontinuity marks a product whose quantity changed between two consecutive sales
// by something other than a recorded sale.
type AuditDiscontinuity struct {
	Code       string    `json:"code"`
	PrevSaleID string    `json:"prev_sale_id"`
	SaleID     string    `json:"sale_id"`
	PrevAfter  int64     `json:"prev_after"`
	Before     int64     `json:"before"`
	Delta      int64     `json:"delta"`
	SoldAt     time.Time `json:"sold_at"`
}

// AuditReport summarises a full ledger scan.
type AuditReport struct {
	ScannedAt       time.Time            `json:"scanned_at"`
	Facts           int64                `json:"facts"`
	Products        int64                `json:"products"`
	Violations      []AuditViolation     `json:"violations"`
	Discontinuities []AuditDiscontinuity `json:"discontinuities"`
}
