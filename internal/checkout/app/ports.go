package app

import (
	"context"

	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
	"github.com/shopspring/decimal"
)

// Cart is the session cart as seen by checkout. It stays locked for the
// lifetime of an active checkout.
type Cart interface {
	Quote() pricing.Quote
	Clear() error
	Lock() error
	Unlock() error
}

type KycPolicy interface {
	RequiresKyc(total int64) (bool, error)
}

type CurrencyDesk interface {
	Lookup(key string) (domain.Currency, error)
	Amount(key string, total int64) (decimal.Decimal, error)
	QR(address string) ([]byte, error)
}

type WalletConnector interface {
	Connect(ctx context.Context) (address string, err error)
}

type KycVerifier interface {
	Verify(ctx context.Context, walletAddress string) error
}

type PaymentRequest struct {
	Method        domain.PaymentMethod
	Total         int64
	Currency      string
	Address       string
	Amount        decimal.Decimal
	WalletAddress string
}

type PaymentVerifier interface {
	Verify(ctx context.Context, req PaymentRequest) error
}

type OrderFinalizer interface {
	Finalize(ctx context.Context, cart orderapp.Cart, req orderapp.Request) (string, error)
}
