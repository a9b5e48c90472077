package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// notificationTTL bounds how long processed-notification markers live. The
// database transaction stays the source of truth; the marker only short-
// circuits obvious provider retries.
const notificationTTL = 48 * time.Hour

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

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func notificationKey(orderID, externalID string) string {
	return fmt.Sprintf("notification:%s:%s", orderID, externalID)
}

// SeenNotification reports whether a (order, notification) pair has already
// been fully processed.
func (c *Client) SeenNotification(ctx context.Context, orderID, externalID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, notificationKey(orderID, externalID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// MarkNotification records a processed (order, notification) pair. Called
// only after the finalize transaction has committed.
func (c *Client) MarkNotification(ctx context.Context, orderID, externalID string) error {
	return c.rdb.Set(ctx, notificationKey(orderID, externalID), "1", notificationTTL).Err()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// SetStock updates the storefront stock projection for a product.
func (c *Client) SetStock(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, 0).Err()
}

// GetStock reads the cached stock projection. The boolean is false on a
// cache miss.
func (c *Client) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock projection for product %d: %w", productID, err)
	}
	return stock, true, nil
}
