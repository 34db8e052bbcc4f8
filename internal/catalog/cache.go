package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aoemotors/driveflow/pkg/logging"
)

// DefaultCacheTTL bounds how long a resolved vehicle is served from Redis
// before the backing source is consulted again.
const DefaultCacheTTL = 15 * time.Minute

// Cache fronts a Source with a Redis TTL cache. Cache failures fall through
// to the source, so a Redis outage degrades to uncached lookups.
type Cache struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCache wraps source with Redis caching. A nil redis client disables
// caching and passes every lookup through.
func NewCache(source Source, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		source: source,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cache) key(name string) string {
	return fmt.Sprintf("catalog:vehicle:%s", strings.ToLower(strings.TrimSpace(name)))
}

// Vehicle resolves name through the cache. A negative result is cached too,
// as an empty value, so repeated unknown names do not hammer the source.
func (c *Cache) Vehicle(ctx context.Context, name string) (*Vehicle, bool, error) {
	if c.redis == nil {
		return c.source.Vehicle(ctx, name)
	}

	data, err := c.redis.Get(ctx, c.key(name)).Bytes()
	if err == nil {
		if len(data) == 0 {
			return nil, false, nil
		}
		var v Vehicle
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, true, nil
		}
		c.logger.Warn("catalog: corrupt cache entry, refetching", "name", name)
	} else if err != redis.Nil {
		c.logger.Warn("catalog: cache read failed", "error", err, "name", name)
	}

	v, ok, err := c.source.Vehicle(ctx, name)
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	if ok {
		payload, err = json.Marshal(v)
		if err != nil {
			return v, ok, nil
		}
	}
	if err := c.redis.Set(ctx, c.key(name), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog: cache write failed", "error", err, "name", name)
	}
	return v, ok, nil
}
