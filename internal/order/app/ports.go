package app

import (
	"context"

	"github.com/dwikikusuma/bullion-store/internal/order/domain"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
)

// StatusViewer takes ownership of finalized orders and answers status
// lookups for them.
type StatusViewer interface {
	Handoff(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
}

type Cart interface {
	Quote() pricing.Quote
	Clear() error
}

type IDGenerator interface {
	NewID() (string, error)
}
