package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client caches read-mostly catalog reference data and tracks reserve
// idempotency markers. Stock itself is never held here: the Postgres row is
// the single authority, this cache only spares the catalog reads that happen
// on every compilation.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetJSON loads a cached value into dest. Returns false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a value with a TTL
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// RecipeCacheKey builds the cache key for a (store, menu item) recipe snapshot
func RecipeCacheKey(storeID, menuItemID string) string {
	return fmt.Sprintf("catalog:recipes:%s:%s", storeID, menuItemID)
}

// ConditionCacheKey builds the cache key for one recipe's conditions
func ConditionCacheKey(recipeID string) string {
	return fmt.Sprintf("catalog:conditions:%s", recipeID)
}

// MarkReservation sets an idempotency marker for an order's reserve attempt.
// Returns false if the marker already existed.
func (c *Client) MarkReservation(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("reserve:%s", orderID), "1", ttl).Result()
}

// ClearReservation removes an order's reserve marker, e.g. after a release.
func (c *Client) ClearReservation(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("reserve:%s", orderID)).Err()
}
