// Package pricing derives cart totals from catalog prices.
//
// All values are whole currency units. The fee is flat: it is added once per
// order and does not scale with the subtotal.
package pricing

import (
	"math"
	"math/bits"

	"github.com/dwikikusuma/bullion-store/internal/cart/domain"
)

const DefaultFee int64 = 150

type Product struct {
	ID        string
	Name      string
	UnitPrice int64
}

type Catalog interface {
	LookupProduct(id string) (Product, bool)
}

type Totals struct {
	Subtotal int64
	Fee      int64
	Total    int64
}

type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
	// Missing marks a cart line whose product no longer resolves; it
	// contributes nothing to the subtotal.
	Missing bool
}

type Quote struct {
	Lines []Line
	Totals
	// Overflow reports that the amounts do not fit in an int64. Subtotal
	// and Total are then pinned at math.MaxInt64 and must not be charged.
	Overflow bool
}

type Calculator struct {
	catalog Catalog
	fee     int64
}

func NewCalculator(catalog Catalog, fee int64) *Calculator {
	if fee < 0 {
		fee = 0
	}
	return &Calculator{catalog: catalog, fee: fee}
}

func (c *Calculator) Fee() int64 { return c.fee }

func (c *Calculator) Totals(items []domain.CartItem) Totals {
	return c.Quote(items).Totals
}

func (c *Calculator) Quote(items []domain.CartItem) Quote {
	lines := make([]Line, 0, len(items))
	var (
		subtotal int64
		overflow bool
	)

	for _, it := range items {
		line := Line{ProductID: it.ProductID, Quantity: it.Quantity}

		p, ok := c.catalog.LookupProduct(it.ProductID)
		if !ok || it.Quantity <= 0 {
			line.Missing = !ok
			lines = append(lines, line)
			continue
		}

		line.Name = p.Name
		line.UnitPrice = p.UnitPrice
		lineTotal, ok := mulAmount(p.UnitPrice, int64(it.Quantity))
		if !ok {
			overflow = true
		}
		line.LineTotal = lineTotal
		if subtotal, ok = addAmount(subtotal, lineTotal); !ok {
			overflow = true
		}
		lines = append(lines, line)
	}

	total, ok := addAmount(subtotal, c.fee)
	if !ok {
		overflow = true
	}
	if overflow {
		subtotal, total = math.MaxInt64, math.MaxInt64
	}

	return Quote{
		Lines: lines,
		Totals: Totals{
			Subtotal: subtotal,
			Fee:      c.fee,
			Total:    total,
		},
		Overflow: overflow,
	}
}

// mulAmount multiplies two non-negative amounts, saturating at
// math.MaxInt64 and reporting false on overflow.
func mulAmount(a, b int64) (int64, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return math.MaxInt64, false
	}
	return int64(lo), true
}

func addAmount(a, b int64) (int64, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || sum > math.MaxInt64 {
		return math.MaxInt64, false
	}
	return int64(sum), true
}
