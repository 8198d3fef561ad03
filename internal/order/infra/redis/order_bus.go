package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/order/domain"
	goredis "github.com/redis/go-redis/v9"
)

// CreatedChannel carries the id of every order handed off through Redis.
const CreatedChannel = "orders:created"

const keyPrefix = "order:"

type OrderBus struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewOrderBus stores orders under order:<id>. A zero ttl keeps them forever.
func NewOrderBus(client *goredis.Client, ttl time.Duration) *OrderBus {
	return &OrderBus{client: client, ttl: ttl}
}

// Handoff writes the order snapshot and announces its id on CreatedChannel
// in a single MULTI/EXEC.
func (b *OrderBus) Handoff(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+order.ID, payload, b.ttl)
		pipe.Publish(ctx, CreatedChannel, order.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", order.ID, err)
	}
	return nil
}

func (b *OrderBus) Get(ctx context.Context, id string) (domain.Order, error) {
	payload, err := b.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Order{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}

	var o domain.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return o, nil
}

// Ping reports whether Redis is reachable.
func (b *OrderBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
