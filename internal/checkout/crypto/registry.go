// Package crypto holds the currencies accepted for crypto payment, their
// placeholder USD rates and the deposit address encoding shown to payers.
package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// AmountPlaces is the precision of a required crypto amount.
const AmountPlaces = 8

const qrSize = 256

var ErrInvalidCurrency = errors.New("invalid currency definition")

type Definition struct {
	Name    string
	Symbol  string
	Network string
	Address string
	UsdRate string
}

// DefaultDefinitions are the deposit addresses and placeholder rates used
// when no currencies are configured.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "Bitcoin", Symbol: "BTC", Network: "Bitcoin Network", Address: "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh", UsdRate: "65000"},
		{Name: "Ethereum", Symbol: "ETH", Network: "Ethereum Mainnet", Address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", UsdRate: "3200"},
		{Name: "Solana", Symbol: "SOL", Network: "Solana Mainnet", Address: "7cKC91mPyX7zf2gVcxiHLdvWj4QYCEYvyTw7KoTiYxdr", UsdRate: "150"},
		{Name: "Cardano", Symbol: "ADA", Network: "Cardano Mainnet", Address: "addr1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh", UsdRate: "0.45"},
	}
}

type entry struct {
	currency domain.Currency
	rate     decimal.Decimal
}

type Registry struct {
	order   []string
	entries map[string]entry
}

func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}

	r := &Registry{entries: make(map[string]entry, len(defs))}
	for _, d := range defs {
		sym := strings.ToUpper(strings.TrimSpace(d.Symbol))
		if sym == "" || strings.TrimSpace(d.Address) == "" {
			return nil, fmt.Errorf("%w: symbol and address are required", ErrInvalidCurrency)
		}
		if _, dup := r.entries[sym]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidCurrency, sym)
		}

		rate, err := decimal.NewFromString(d.UsdRate)
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s: %v", ErrInvalidCurrency, sym, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be positive", ErrInvalidCurrency, sym)
		}

		r.order = append(r.order, sym)
		r.entries[sym] = entry{
			currency: domain.Currency{Name: d.Name, Symbol: sym, Network: d.Network, Address: d.Address},
			rate:     rate,
		}
	}
	return r, nil
}

func (r *Registry) List() []domain.Currency {
	out := make([]domain.Currency, 0, len(r.order))
	for _, sym := range r.order {
		out = append(out, r.entries[sym].currency)
	}
	return out
}

// Lookup finds a currency by symbol or name, ignoring case.
func (r *Registry) Lookup(key string) (domain.Currency, error) {
	e, ok := r.find(key)
	if !ok {
		return domain.Currency{}, fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, key)
	}
	return e.currency, nil
}

// Amount converts a USD total into the currency, rounded to AmountPlaces.
func (r *Registry) Amount(key string, total int64) (decimal.Decimal, error) {
	e, ok := r.find(key)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, key)
	}
	return decimal.NewFromInt(total).DivRound(e.rate, AmountPlaces), nil
}

// QR encodes an address as a PNG QR code.
func (r *Registry) QR(address string) ([]byte, error) {
	return EncodeQR(address)
}

func EncodeQR(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

func (r *Registry) find(key string) (entry, bool) {
	key = strings.TrimSpace(key)
	if e, ok := r.entries[strings.ToUpper(key)]; ok {
		return e, true
	}
	for _, sym := range r.order {
		if strings.EqualFold(r.entries[sym].currency.Name, key) {
			return r.entries[sym], true
		}
	}
	return entry{}, false
}
