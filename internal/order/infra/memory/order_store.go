package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/order/domain"
)

type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

func (s *OrderStore) Handoff(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	order.OrderItems = slices.Clone(order.OrderItems)

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	o, ok := s.orders[id]
	s.mu.RUnlock()

	if !ok {
		return domain.Order{}, app.ErrNotFound
	}
	o.OrderItems = slices.Clone(o.OrderItems)
	return o, nil
}
