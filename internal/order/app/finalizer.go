package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwikikusuma/bullion-store/internal/order/domain"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyOrder   = errors.New("order has no items")
	ErrInvalidTotal = errors.New("order total out of range")
)

type Request struct {
	PaymentMethod  string
	CryptoCurrency string
	CryptoAmount   string
	WalletAddress  string
}

type Finalizer struct {
	ids    IDGenerator
	viewer StatusViewer
	log    *slog.Logger

	now func() time.Time
}

func NewFinalizer(ids IDGenerator, viewer StatusViewer, log *slog.Logger) *Finalizer {
	if ids == nil {
		ids = TimestampIDs{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{ids: ids, viewer: viewer, log: log, now: time.Now}
}

// Finalize snapshots the priced cart into an order, hands it to the status
// viewer and clears the cart. The cart is left untouched when the hand-off
// fails.
func (f *Finalizer) Finalize(ctx context.Context, cart Cart, req Request) (string, error) {
	quote := cart.Quote()

	items := make([]domain.OrderItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		if line.Missing || line.Quantity <= 0 {
			continue
		}
		items = append(items, domain.OrderItem{
			ProductID:       line.ProductID,
			Name:            line.Name,
			UnitAmount:      line.UnitPrice,
			Quantity:        line.Quantity,
			LineTotalAmount: line.LineTotal,
		})
	}
	if len(items) == 0 {
		return "", ErrEmptyOrder
	}
	if quote.Overflow || quote.Total <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidTotal, quote.Total)
	}

	id, err := f.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}

	order := domain.Order{
		ID:             id,
		Currency:       "USD",
		Subtotal:       quote.Subtotal,
		Fee:            quote.Fee,
		Total:          quote.Total,
		OrderItems:     items,
		PaymentMethod:  req.PaymentMethod,
		CryptoCurrency: req.CryptoCurrency,
		CryptoAmount:   req.CryptoAmount,
		WalletAddress:  req.WalletAddress,
		CreatedAt:      f.now().UTC(),
	}

	if err := f.viewer.Handoff(ctx, order); err != nil {
		return "", fmt.Errorf("hand off order %s: %w", id, err)
	}

	if err := cart.Clear(); err != nil {
		f.log.Warn("order handed off but cart not cleared", slog.String("order_id", id), slog.Any("err", err))
	}

	f.log.Info("order finalized",
		slog.String("order_id", id),
		slog.Int64("total", order.Total),
		slog.String("payment_method", order.PaymentMethod),
	)
	return id, nil
}

// Status looks up a handed-off order and renders its fulfilment view.
func (f *Finalizer) Status(ctx context.Context, id string) (domain.StatusView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StatusView{}, ErrInvalidInput
	}

	o, err := f.viewer.Get(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	return domain.NewStatusView(o), nil
}
