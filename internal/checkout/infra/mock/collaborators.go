// Package mock provides the always-successful wallet, KYC and payment
// collaborators used until real integrations exist.
package mock

import (
	"context"

	"github.com/dwikikusuma/bullion-store/internal/checkout/app"
)

const WalletAddress = "bc1p...3kp9"

type Wallet struct {
	Address string
}

func (w Wallet) Connect(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if w.Address == "" {
		return WalletAddress, nil
	}
	return w.Address, nil
}

type Kyc struct{}

func (Kyc) Verify(ctx context.Context, _ string) error { return ctx.Err() }

type Payments struct{}

func (Payments) Verify(ctx context.Context, _ app.PaymentRequest) error { return ctx.Err() }
