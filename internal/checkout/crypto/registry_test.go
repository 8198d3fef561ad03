package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
)

func TestRegistry_Defaults(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got := r.List()
	want := []string{"BTC", "ETH", "SOL", "ADA"}
	if len(got) != len(want) {
		t.Fatalf("expected %d currencies, got %d", len(want), len(got))
	}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Fatalf("position %d: expected %s, got %s", i, sym, got[i].Symbol)
		}
	}

	c, err := r.Lookup("ethereum")
	if err != nil {
		t.Fatalf("Lookup by name: %v", err)
	}
	if c.Address != "0x742d35Cc6634C0532925a3b844Bc454e4438f44e" || c.Network != "Ethereum Mainnet" {
		t.Fatalf("unexpected currency: %+v", c)
	}

	if _, err := r.Lookup("DOGE"); !errors.Is(err, domain.ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestRegistry_Amount(t *testing.T) {
	r, _ := NewRegistry(nil)

	tests := []struct {
		symbol string
		total  int64
		want   string
	}{
		{"BTC", 16550, "0.25461538"},
		{"ETH", 3200, "1"},
		{"SOL", 314, "2.09333333"},
		{"ada", 9, "20"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, err := r.Amount(tt.symbol, tt.total)
			if err != nil {
				t.Fatalf("Amount: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("Amount(%s, %d) = %s, want %s", tt.symbol, tt.total, got, tt.want)
			}
		})
	}
}

func TestRegistry_InvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"missing address", []Definition{{Symbol: "BTC", UsdRate: "1"}}},
		{"zero rate", []Definition{{Symbol: "BTC", Address: "x", UsdRate: "0"}}},
		{"bad rate", []Definition{{Symbol: "BTC", Address: "x", UsdRate: "lots"}}},
		{"duplicate", []Definition{
			{Symbol: "BTC", Address: "x", UsdRate: "1"},
			{Symbol: "btc", Address: "y", UsdRate: "2"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.defs); !errors.Is(err, ErrInvalidCurrency) {
				t.Fatalf("expected ErrInvalidCurrency, got %v", err)
			}
		})
	}
}

func TestEncodeQR(t *testing.T) {
	png, err := EncodeQR("bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh")
	if err != nil {
		t.Fatalf("EncodeQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected PNG output")
	}
}
