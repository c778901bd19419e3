package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrderStatus is the best-known outcome shown on the payment status page.
type OrderStatus struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (*OrderStatus, bool, error)
	Set(ctx context.Context, s OrderStatus) error
	Invalidate(ctx context.Context, orderID string) error
}

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

type redisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client) StatusCache {
	return &redisStatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func statusKey(orderID string) string {
	return fmt.Sprintf(KeyOrderStatus, orderID)
}

// Get reports a miss as (nil, false, nil).
func (c *redisStatusCache) Get(ctx context.Context, orderID string) (*OrderStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var s OrderStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode cached status: %w", err)
	}
	return &s, true, nil
}

func (c *redisStatusCache) Set(ctx context.Context, s OrderStatus) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(s.OrderID), b, c.ttl).Err()
}

func (c *redisStatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, statusKey(orderID)).Err()
}

// Noop is used when REDIS_ADDR is not configured; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (*OrderStatus, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, OrderStatus) error                  { return nil }
func (Noop) Invalidate(context.Context, string) error                { return nil }
