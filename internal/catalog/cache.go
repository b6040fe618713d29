package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

const defaultCacheTTL = 2 * time.Minute

// cacheStore is the Redis surface the cache needs.
type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CounterKey(name string) string
}

// Cache is a read-through layer over catalog queries. Cache failures degrade
// to the database, never to an error: the catalog must stay readable while
// Redis is down.
type Cache struct {
	repo  *Repository
	store cacheStore
	logg  *logger.Logger
	ttl   time.Duration
}

func NewCache(repo *Repository, store cacheStore, logg *logger.Logger) *Cache {
	return &Cache{repo: repo, store: store, logg: logg, ttl: defaultCacheTTL}
}

func (c *Cache) key(parts string) string {
	return c.store.CounterKey("catalog:" + parts)
}

// Categories returns the category list, served from cache when warm.
func (c *Cache) Categories(ctx context.Context) ([]models.Category, error) {
	var cached []models.Category
	if c.readThrough(ctx, c.key("categories"), &cached) {
		return cached, nil
	}
	rows, err := c.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, c.key("categories"), rows)
	return rows, nil
}

// Locations returns the location list, served from cache when warm.
func (c *Cache) Locations(ctx context.Context) ([]models.Location, error) {
	var cached []models.Location
	if c.readThrough(ctx, c.key("locations"), &cached) {
		return cached, nil
	}
	rows, err := c.repo.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, c.key("locations"), rows)
	return rows, nil
}

// Listings returns the aggregated listings for one category (or all when
// empty). Stock counts move constantly, so listings get the same short TTL as
// the rest and are invalidated on every finalized purchase.
func (c *Cache) Listings(ctx context.Context, category string) ([]Listing, error) {
	key := c.key("listings:" + category)
	var cached []Listing
	if c.readThrough(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := c.repo.ListListings(ctx, category)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, rows)
	return rows, nil
}

// Invalidate drops the cached catalog. Called after stock-changing writes.
func (c *Cache) Invalidate(ctx context.Context, categories ...string) {
	keys := []string{c.key("categories"), c.key("locations"), c.key("listings:")}
	for _, cat := range categories {
		keys = append(keys, c.key("listings:"+cat))
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.warn(ctx, "invalidating catalog cache", err)
	}
}

func (c *Cache) readThrough(ctx context.Context, key string, out any) bool {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.warn(ctx, "reading catalog cache", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.warn(ctx, "decoding catalog cache", err)
		return false
	}
	return true
}

func (c *Cache) fill(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.warn(ctx, "encoding catalog cache", err)
		return
	}
	if err := c.store.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.warn(ctx, "writing catalog cache", err)
	}
}

func (c *Cache) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "cache_error", err.Error()), msg)
}
