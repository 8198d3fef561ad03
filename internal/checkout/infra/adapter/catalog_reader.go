package adapter

import (
	catalogapp "github.com/dwikikusuma/bullion-store/internal/catalog/app"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
)

// CatalogServiceReader exposes the catalog to the pricing calculator.
type CatalogServiceReader struct {
	svc *catalogapp.Service
}

func NewCatalogServiceReader(svc *catalogapp.Service) *CatalogServiceReader {
	return &CatalogServiceReader{svc: svc}
}

func (r *CatalogServiceReader) LookupProduct(id string) (pricing.Product, bool) {
	p, ok := r.svc.LookupProduct(id)
	if !ok {
		return pricing.Product{}, false
	}

	return pricing.Product{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price.Amount,
	}, true
}
