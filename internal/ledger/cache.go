package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stockVersionKey = "stock:version"

// Cache keeps stock dashboard rows in Redis behind a version counter. Every
// ledger append bumps the version, expiring all rows built against the old one.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	ver, err := c.client.Get(ctx, stockVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, stockVersionKey, 1, 0).Err(); err != nil {
			return 0
		}
		return 1
	}
	if err != nil {
		return 0
	}
	return ver
}

func (c *Cache) key(ctx context.Context, filter StockFilter) string {
	return fmt.Sprintf("stock:rows:v%d:%s:%t:%d", c.version(ctx), filter.Search, filter.LowOnly, filter.Limit)
}

// GetRows fetches cached rows for the filter, reporting a miss on any error.
func (c *Cache) GetRows(ctx context.Context, filter StockFilter) ([]StockRow, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, c.key(ctx, filter)).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []StockRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// PutRows stores rows for the filter under the current version.
func (c *Cache) PutRows(ctx context.Context, filter StockFilter, rows []StockRow) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ctx, filter), payload, c.ttl).Err()
}

// Bump advances the version so readers stop hitting stale entries. Old keys
// age out through their TTL.
func (c *Cache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, stockVersionKey).Err()
}
