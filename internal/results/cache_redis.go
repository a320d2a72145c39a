package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"examdesk/internal/results/metrics"
	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// RedisCache is the production result cache. Values are JSON so downstream
// readers in other services can consume them without this module's types.
type RedisCache struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

func NewRedisCache(client *redis.Client, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, metrics: m}
}

func (c *RedisCache) Set(ctx context.Context, result StudentResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal student result: %w", err)
	}
	key := ResultKey(result.Tenant, result.ExamID, result.StudentID)
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, sentinel.ErrUnavailable)
	}
	return nil
}

// SetBatch warms a whole batch with one round trip.
func (c *RedisCache) SetBatch(ctx context.Context, batch []StudentResult, ttl time.Duration) error {
	if len(batch) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for i := range batch {
		payload, err := json.Marshal(batch[i])
		if err != nil {
			return fmt.Errorf("marshal student result: %w", err)
		}
		pipe.Set(ctx, ResultKey(batch[i].Tenant, batch[i].ExamID, batch[i].StudentID), payload, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache batch set: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*StudentResult, error) {
	key := ResultKey(tenant.String(), exam.String(), student.String())
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCacheMiss()
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, sentinel.ErrUnavailable)
	}
	var result StudentResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal student result: %w", err)
	}
	c.metrics.IncCacheHit()
	return &result, nil
}
