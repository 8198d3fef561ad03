package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/order/domain"
)

func TestOrderStore(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()

	in := domain.Order{ID: "ORD-1", Total: 314, OrderItems: []domain.OrderItem{{ProductID: "B", Quantity: 2}}}
	if err := s.Handoff(ctx, in); err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	in.OrderItems[0].Quantity = 99

	got, err := s.Get(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderItems[0].Quantity != 2 {
		t.Fatal("stored order must not alias the caller's slice")
	}

	if _, err := s.Get(ctx, "ORD-2"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewOrderStore().Handoff(ctx, domain.Order{ID: "ORD-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
