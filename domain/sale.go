package domain

import (
	"strings"
	"time"
)

// Sale is an immutable ledger fact. Product code and name are copied at sale time.
type Sale struct {
	ID             string    `json:"id"`
	ProductCode    string    `json:"product_code"`
	ProductName    string    `json:"product_name"`
	QuantitySold   int64     `json:"quantity_sold"`
	QuantityBefore int64     `json:"quantity_before"`
	QuantityAfter  int64     `json:"quantity_after"`
	Note           string    `json:"note,omitempty"`
	SoldAt         time.Time `json:"sold_at"`
}

// SaleRequest is the input of a sale.
type SaleRequest struct {
	Code   string
	Amount int64
	Note   string
}

// Normalize validates the request and returns a trimmed copy.
func (r SaleRequest) Normalize() (SaleRequest, error) {
	out := SaleRequest{
		Code:   NormalizeCode(r.Code),
		Amount: r.Amount,
		Note:   strings.TrimSpace(r.Note),
	}
	if out.Code == "" {
		return SaleRequest{}, Invalidf("code is required")
	}
	if out.Amount < 1 {
		return SaleRequest{}, Invalidf("amount must be at least 1")
	}
	return out, nil
}

// SaleFilter narrows sale listings. A nil Month means all time.
type SaleFilter struct {
	Code  string
	Month *Month
}
