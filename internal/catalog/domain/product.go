package domain

import "time"

type Money struct {
	Currency string
	Amount   int64
}

// Product is a bar offered by the storefront. Price.Amount is in whole
// currency units and never negative.
type Product struct {
	ID        string
	Name      string
	Weight    string
	Price     Money
	InStock   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
