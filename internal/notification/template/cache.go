package template

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "email_template:"

// CachedStore is a cache-aside wrapper over another Store. Only found
// templates are cached so a newly activated template shows up on the next
// lookup. Cache errors never fail a lookup.
type CachedStore struct {
	next   Store
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedStore {
	return &CachedStore{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "template_cache"}),
	}
}

func CacheKey(name string) string {
	return cacheKeyPrefix + name
}

func (c *CachedStore) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	key := CacheKey(name)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var tpl models.Template
		if jsonErr := json.Unmarshal([]byte(val), &tpl); jsonErr == nil {
			metrics.TemplateCacheRequests.WithLabelValues("hit").Inc()
			return &tpl, nil
		}
		metrics.TemplateCacheRequests.WithLabelValues("corrupt").Inc()
	case stderrors.Is(err, redis.Nil):
		metrics.TemplateCacheRequests.WithLabelValues("miss").Inc()
	default:
		metrics.TemplateCacheRequests.WithLabelValues("error").Inc()
		c.logger.Warn("template cache read failed", map[string]interface{}{
			"template": name,
			"error":    err.Error(),
		})
	}

	tpl, err := c.next.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(tpl)
	if err != nil {
		return tpl, nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("template cache write failed", map[string]interface{}{
			"template": name,
			"error":    err.Error(),
		})
	}
	return tpl, nil
}
