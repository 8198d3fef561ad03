package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dwikikusuma/bullion-store/internal/catalog/app"
)

func TestDefaultSeed(t *testing.T) {
	products, err := LoadSeed("")
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(products) != 11 {
		t.Fatalf("expected 11 bars, got %d", len(products))
	}

	repo := NewProductRepo(products)
	p, err := repo.Get(context.Background(), "libregold-200g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Price.Amount != 16400 || p.Price.Currency != "USD" || !p.InStock {
		t.Fatalf("unexpected product: %+v", p)
	}

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseSeedRejectsGarbage(t *testing.T) {
	if _, err := ParseSeed([]byte("products: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
