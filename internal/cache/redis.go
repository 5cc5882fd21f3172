package cache

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/fiscal"
)

// RedisCache shares situation views across API instances. Cache failures
// are logged and treated as misses; the situation is always recomputable.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisCache connects to the given Redis address.
func NewRedisCache(addr string, ttl time.Duration, log zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// Get implements SituationCache.
func (c *RedisCache) Get(buildingID string, year int) (*fiscal.Situation, bool) {
	data, err := c.client.Get(key(buildingID, year)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Situation cache read failed")
		return nil, false
	}
	var sit fiscal.Situation
	if err := json.Unmarshal(data, &sit); err != nil {
		c.log.Warn().Err(err).Msg("Situation cache entry corrupt")
		return nil, false
	}
	return &sit, true
}

// Set implements SituationCache.
func (c *RedisCache) Set(buildingID string, year int, sit *fiscal.Situation) {
	data, err := json.Marshal(sit)
	if err != nil {
		c.log.Warn().Err(err).Msg("Situation cache encode failed")
		return
	}
	if err := c.client.Set(key(buildingID, year), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Situation cache write failed")
	}
}

// Invalidate implements SituationCache.
func (c *RedisCache) Invalidate(buildingID string, year int) {
	if err := c.client.Del(key(buildingID, year)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Situation cache invalidation failed")
	}
}

var _ SituationCache = (*RedisCache)(nil)
