package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pragma_store_cache_hits_total",
		Help: "Total number of read-through cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pragma_store_cache_misses_total",
		Help: "Total number of read-through cache misses",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pragma_store_cache_errors_total",
		Help: "Total number of cache errors",
	})
)

// Cache is a Redis-backed cache with get/set helpers for per-pair decimals
// and the current median. It is opened at startup and held by the API
// server, but no query path reads from or writes to it: pricing and
// decimal lookups go to the database and the in-memory decimal table.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// CacheConfig holds Redis connection settings for the cache.
type CacheConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewCache opens a Redis client and verifies connectivity.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pragma:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// GetDecimals returns the cached decimal count for a pair, if present.
func (c *Cache) GetDecimals(ctx context.Context, pairID string) (int, bool) {
	raw, err := c.client.Get(ctx, c.prefix+"decimals:"+pairID).Bytes()
	if err == redis.Nil {
		cacheMisses.Inc()
		return 0, false
	}
	if err != nil {
		cacheErrors.Inc()
		return 0, false
	}
	var d int
	if err := json.Unmarshal(raw, &d); err != nil {
		cacheErrors.Inc()
		return 0, false
	}
	cacheHits.Inc()
	return d, true
}

// SetDecimals caches the decimal count for a pair.
func (c *Cache) SetDecimals(ctx context.Context, pairID string, decimals int) {
	raw, err := json.Marshal(decimals)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+"decimals:"+pairID, raw, 0).Err(); err != nil {
		cacheErrors.Inc()
	}
}

// GetCurrentMedian returns the cached median for a pair, if present and
// not yet expired. The returned entry carries no components.
func (c *Cache) GetCurrentMedian(ctx context.Context, pairID string) (MedianEntryWithComponents, bool) {
	raw, err := c.client.Get(ctx, c.prefix+"median:"+pairID).Bytes()
	if err == redis.Nil {
		cacheMisses.Inc()
		return MedianEntryWithComponents{}, false
	}
	if err != nil {
		cacheErrors.Inc()
		return MedianEntryWithComponents{}, false
	}
	var cached cachedMedian
	if err := json.Unmarshal(raw, &cached); err != nil {
		cacheErrors.Inc()
		return MedianEntryWithComponents{}, false
	}
	cacheHits.Inc()
	return cached.toMedianEntry(), true
}

// SetCurrentMedian caches a median, without its components, for the
// configured TTL.
func (c *Cache) SetCurrentMedian(ctx context.Context, entry MedianEntryWithComponents) {
	raw, err := json.Marshal(fromMedianEntry(entry))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+"median:"+entry.PairID, raw, c.ttl).Err(); err != nil {
		cacheErrors.Inc()
	}
}

// cachedMedian is the JSON shape stored for a MedianEntryWithComponents:
// the pair id, the median price in RatString form, and the timestamp.
// Components are not stored.
type cachedMedian struct {
	PairID          string    `json:"pair_id"`
	MedianPrice     string    `json:"median_price"`
	MedianTimestamp time.Time `json:"median_timestamp"`
}

func fromMedianEntry(e MedianEntryWithComponents) cachedMedian {
	return cachedMedian{
		PairID:          e.PairID,
		MedianPrice:     e.MedianPrice.RatString(),
		MedianTimestamp: e.MedianTimestamp,
	}
}

func (c cachedMedian) toMedianEntry() MedianEntryWithComponents {
	price, _ := new(big.Rat).SetString(c.MedianPrice)
	return MedianEntryWithComponents{
		PairID:          c.PairID,
		MedianPrice:     price,
		MedianTimestamp: c.MedianTimestamp,
	}
}
