package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Product is a stocked item keyed by its normalized code.
type Product struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProduct is the input for creating a product.
type NewProduct struct {
	Code     string
	Name     string
	Quantity int64
	Location string
}

// ProductUpdate carries the optional fields of a product edit. Nil fields are left untouched.
type ProductUpdate struct {
	Name     *string
	Quantity *int64
	Location *string
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search string
	Limit  int
}

// Decrement is the before/after snapshot of a successful stock reservation.
type Decrement struct {
	Product Product
	Before  int64
	After   int64
}

// NormalizeCode trims and upper-cases a product code.
func NormalizeCode(code string) string {
	// Casers keep internal state, so one is built per call.
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// Normalize returns a trimmed, validated copy of the input.
func (p NewProduct) Normalize() (NewProduct, error) {
	out := NewProduct{
		Code:     NormalizeCode(p.Code),
		Name:     strings.TrimSpace(p.Name),
		Quantity: p.Quantity,
		Location: strings.TrimSpace(p.Location),
	}
	if out.Code == "" {
		return NewProduct{}, Invalidf("code is required")
	}
	if out.Name == "" {
		return NewProduct{}, Invalidf("name is required")
	}
	if out.Quantity < 0 {
		return NewProduct{}, Invalidf("quantity must not be negative")
	}
	return out, nil
}

// Normalize trims the update and rejects empty names or negative quantities.
func (u ProductUpdate) Normalize() (ProductUpdate, error) {
	var out ProductUpdate
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return ProductUpdate{}, Invalidf("name must not be empty")
		}
		out.Name = &name
	}
	if u.Quantity != nil {
		if *u.Quantity < 0 {
			return ProductUpdate{}, Invalidf("quantity must not be negative")
		}
		qty := *u.Quantity
		out.Quantity = &qty
	}
	if u.Location != nil {
		loc := strings.TrimSpace(*u.Location)
		out.Location = &loc
	}
	if out.Name == nil && out.Quantity == nil && out.Location == nil {
		return ProductUpdate{}, Invalidf("nothing to update")
	}
	return out, nil
}
