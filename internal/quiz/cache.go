package quiz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSensitiveTTL = 15 * time.Minute

// Cache is a Redis-backed SensitiveCache. Entries exist only for quizzes
// whose time-lock already unwound, so the cached content is public; the TTL
// just bounds memory.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SensitiveCache = (*Cache)(nil)

// NewCache builds the cache. A non-positive ttl selects the default.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultSensitiveTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(quizID string) string {
	return "sensitiveset:" + quizID
}

func (c *Cache) Get(ctx context.Context, quizID string) (*SensitiveSet, error) {
	data, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var set SensitiveSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Cache) Set(ctx context.Context, quizID string, set SensitiveSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(quizID), data, c.ttl).Err()
}
