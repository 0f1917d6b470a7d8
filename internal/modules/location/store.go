// README: Geocode cache backed by Redis strings.
package location

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"taxidispatch/internal/types"
)

const geocodeKeyPrefix = "geocode:"

type RedisGeocodeCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisGeocodeCache(client *redis.Client, ttl time.Duration) *RedisGeocodeCache {
	return &RedisGeocodeCache{redis: client, ttl: ttl}
}

func (c *RedisGeocodeCache) Get(ctx context.Context, address string) (types.Point, bool, error) {
	val, err := c.redis.Get(ctx, geocodeKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return types.Point{}, false, nil
	}
	if err != nil {
		return types.Point{}, false, err
	}
	p, err := types.ParseNullPoint(val)
	if err != nil || !p.Valid {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		return types.Point{}, false, nil
	}
	return p.Point, true, nil
}

func (c *RedisGeocodeCache) Set(ctx context.Context, address string, p types.Point) error {
	return c.redis.Set(ctx, geocodeKey(address), p.String(), c.ttl).Err()
}

func geocodeKey(address string) string {
	return geocodeKeyPrefix + normalizeAddress(address)
}

func normalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}
