// Package cache implements the read-through Redis cache for product state.
//
// Only the public product listing is served from Redis; entitlement decisions
// read the repository directly so gate flag changes (frozen, broken,
// alpha-only) take effect without waiting out a TTL. Writes to a product
// invalidate its cache entry immediately; listing reads may still observe the
// old flags until the TTL lapses, which bounds staleness to the configured
// TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
)

// maxTTL is the hard ceiling on cache entry lifetime. Config validation
// rejects larger values too; this is the last line of defense.
const maxTTL = 5 * time.Minute

// Connect initializes a Redis client from URL or host:port input.
// Supporting both formats keeps local/dev and container config paths simple.
func Connect(_ context.Context, address, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(address, "redis://") {
		opt, parseErr := redis.ParseURL(address)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), nil
}

// ProductLoader loads product state from the authoritative store.
// *repositories.ProductRepository satisfies this.
type ProductLoader interface {
	GetByName(ctx context.Context, name string) (*models.Product, error)
	List(ctx context.Context) ([]*models.Product, error)
}

// ProductCache is a read-through cache over a ProductLoader. A nil Redis
// client disables caching entirely and every read goes to the loader.
type ProductCache struct {
	client *redis.Client
	loader ProductLoader
	ttl    time.Duration
}

// NewProductCache creates a product cache. client may be nil to disable
// caching (all reads pass through to the loader).
func NewProductCache(client *redis.Client, loader ProductLoader, ttl time.Duration) *ProductCache {
	if ttl <= 0 || ttl > maxTTL {
		ttl = maxTTL
	}
	return &ProductCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func productKey(name string) string {
	return "product:name:" + name
}

// listKey holds the serialized full product listing.
const listKey = "product:list"

// GetByName returns the product by machine name, serving from Redis when a
// fresh entry exists. A cache miss or any Redis error falls through to the
// loader; Redis being down never breaks product reads.
func (c *ProductCache) GetByName(ctx context.Context, name string) (*models.Product, error) {
	if c.client == nil {
		return c.loader.GetByName(ctx, name)
	}

	key := productKey(name)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var product models.Product
		if unmarshalErr := json.Unmarshal(raw, &product); unmarshalErr == nil {
			return &product, nil
		}
		// Corrupt entry: drop it and reload
		_ = c.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		slog.Warn("product cache read failed, falling back to database",
			"product", name, "error", err)
	}

	product, err := c.loader.GetByName(ctx, name)
	if err != nil || product == nil {
		return product, err
	}

	if raw, marshalErr := json.Marshal(product); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
			slog.Warn("product cache write failed", "product", name, "error", setErr)
		}
	}

	return product, nil
}

// List returns all products, serving the whole listing from Redis when a
// fresh entry exists. Same fail-open behaviour as GetByName.
func (c *ProductCache) List(ctx context.Context) ([]*models.Product, error) {
	if c.client == nil {
		return c.loader.List(ctx)
	}

	raw, err := c.client.Get(ctx, listKey).Bytes()
	if err == nil {
		var products []*models.Product
		if unmarshalErr := json.Unmarshal(raw, &products); unmarshalErr == nil {
			return products, nil
		}
		_ = c.client.Del(ctx, listKey).Err()
	} else if err != redis.Nil {
		slog.Warn("product listing cache read failed, falling back to database", "error", err)
	}

	products, err := c.loader.List(ctx)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(products); marshalErr == nil {
		if setErr := c.client.Set(ctx, listKey, raw, c.ttl).Err(); setErr != nil {
			slog.Warn("product listing cache write failed", "error", setErr)
		}
	}

	return products, nil
}

// Invalidate removes the cache entries for a product, including the listing.
// Called after any write to the product row so the next read observes the new
// flags immediately.
func (c *ProductCache) Invalidate(ctx context.Context, name string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, productKey(name), listKey).Err()
}
