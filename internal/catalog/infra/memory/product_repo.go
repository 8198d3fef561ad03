package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/dwikikusuma/bullion-store/internal/catalog/app"
	"github.com/dwikikusuma/bullion-store/internal/catalog/domain"
	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultSeed []byte

type seedFile struct {
	Currency string `yaml:"currency"`
	Products []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Weight  string `yaml:"weight"`
		Price   int64  `yaml:"price"`
		InStock bool   `yaml:"in_stock"`
	} `yaml:"products"`
}

type ProductRepo struct {
	products []domain.Product
}

func NewProductRepo(products []domain.Product) *ProductRepo {
	return &ProductRepo{products: products}
}

// LoadSeed reads a YAML product seed. An empty path selects the embedded
// default catalog.
func LoadSeed(path string) ([]domain.Product, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog seed %s: %w", path, err)
		}
		data = b
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]domain.Product, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}

	currency := seed.Currency
	if currency == "" {
		currency = "USD"
	}

	out := make([]domain.Product, 0, len(seed.Products))
	for _, p := range seed.Products {
		out = append(out, domain.Product{
			ID:      p.ID,
			Name:    p.Name,
			Weight:  p.Weight,
			Price:   domain.Money{Currency: currency, Amount: p.Price},
			InStock: p.InStock,
		})
	}
	return out, nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	for _, p := range r.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, app.ErrNotFound
}

func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, len(r.products))
	copy(out, r.products)
	return out, nil
}
