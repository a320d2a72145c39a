package results

import (
	"context"
	"sync"
	"time"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// Cache is the result cache contract: set with TTL, get or miss. The pipeline
// warms it ahead of result-day reads; readers fall back to the grade store on
// miss (cache-aside).
type Cache interface {
	Set(ctx context.Context, result StudentResult, ttl time.Duration) error
	// Get returns sentinel.ErrNotFound on miss or expiry.
	Get(ctx context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*StudentResult, error)
}

// ResultKey is the cache key format shared by all implementations.
func ResultKey(tenant, exam, student string) string {
	return "result:" + tenant + ":" + exam + ":" + student
}

// InMemoryCache is a TTL map for tests and single-node runs.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	result    StudentResult
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *InMemoryCache) Set(_ context.Context, result StudentResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ResultKey(result.Tenant, result.ExamID, result.StudentID)
	c.entries[key] = memoryCacheEntry{result: result, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *InMemoryCache) Get(_ context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*StudentResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ResultKey(tenant.String(), exam.String(), student.String())]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	copied := entry.result
	return &copied, nil
}

// Len reports the number of live entries; used by tests.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if !c.now().After(e.expiresAt) {
			n++
		}
	}
	return n
}
