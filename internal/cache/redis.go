// Package cache wraps the deterministic enricher's geocoder with a
// Redis-backed cache-aside layer, so repeated mentions of the same address
// across messages don't re-hit the external geocoder.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/enrich"
)

// RedisGeocoderCache decorates another enrich.Geocoder with a Redis
// cache-aside: a hit (including a cached negative) skips the wrapped
// lookup entirely; a miss falls through, and both positive and negative
// results are cached so a persistently unresolvable address doesn't keep
// re-hitting the upstream geocoder.
type RedisGeocoderCache struct {
	client  redis.UniversalClient
	next    enrich.Geocoder
	ttl     time.Duration
	keyPfx  string
}

// RedisConfig is the minimal connection surface this cache needs; cmd/
// fills Addr from the ambient RedisAddr config setting.
type RedisConfig struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// NewRedisGeocoderCache dials Redis and wraps next. ttl <= 0 defaults to
// 24h, long enough that a postal code (which doesn't change) stays cached
// across a typical backfill run without growing unbounded.
func NewRedisGeocoderCache(ctx context.Context, cfg RedisConfig, next enrich.Geocoder, ttl time.Duration) (*RedisGeocoderCache, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: geocoder redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGeocoderCache{client: client, next: next, ttl: ttl, keyPfx: "geocode:"}, nil
}

func (c *RedisGeocoderCache) key(address string) string {
	return c.keyPfx + address
}

// Lookup implements enrich.Geocoder.
func (c *RedisGeocoderCache) Lookup(ctx context.Context, address string) (string, bool, error) {
	cached, err := c.client.Get(ctx, c.key(address)).Result()
	if err == nil {
		return decodeCacheEntry(cached)
	}
	if err != redis.Nil {
		log.Warn().Err(err).Str("address", address).Msg("cache: geocoder redis get failed, falling through")
	}

	code, found, err := c.next.Lookup(ctx, address)
	if err != nil {
		return code, found, err
	}
	if setErr := c.client.Set(ctx, c.key(address), encodeCacheEntry(code, found), c.ttl).Err(); setErr != nil {
		log.Warn().Err(setErr).Str("address", address).Msg("cache: geocoder redis set failed")
	}
	return code, found, nil
}

// encodeCacheEntry/decodeCacheEntry store "<found>:<code>" so a cached
// negative (found=false) is distinguishable from a cache miss.
func encodeCacheEntry(code string, found bool) string {
	return strconv.FormatBool(found) + ":" + code
}

func decodeCacheEntry(s string) (string, bool, error) {
	if len(s) < 6 {
		return "", false, nil
	}
	switch {
	case len(s) >= 5 && s[:5] == "true:":
		return s[5:], true, nil
	case len(s) >= 6 && s[:6] == "false:":
		return s[6:], false, nil
	}
	return "", false, nil
}
