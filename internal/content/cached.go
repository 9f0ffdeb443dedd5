package content

import (
	"context"
	"time"

	"driftline/pkg/cache"
	"driftline/pkg/models"
)

// CachedRepository fronts a Repository with a TTL cache for single-item
// lookups. The cycle guard and the suggester resolve the same ids over and
// over; bulk listings bypass the cache.
type CachedRepository struct {
	inner Repository
	cache *cache.Cache
}

// NewCachedRepository wraps a repository with a TTL cache.
func NewCachedRepository(inner Repository, ttl time.Duration, maxEntries int) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		cache: cache.New(cache.Options{
			TTL:         ttl,
			NegativeTTL: ttl / 4,
			MaxEntries:  maxEntries,
		}, cache.MetricsHooks{}),
	}
}

// FindByID returns a cached content item when fresh, loading through on miss.
// Catalog misses are cached negatively so repeated probes for deleted
// content stay cheap.
func (r *CachedRepository) FindByID(ctx context.Context, id string) (*models.ContentNode, error) {
	val, ok, err := r.cache.Get(ctx, "content:"+id, func(ctx context.Context, _ string) (interface{}, bool, error) {
		node, err := r.inner.FindByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return node, true, nil
	})
	if err != nil || !ok {
		return nil, err
	}
	return val.(*models.ContentNode), nil
}

// ListByIDs passes through to the inner repository.
func (r *CachedRepository) ListByIDs(ctx context.Context, ids []string) ([]models.ContentNode, error) {
	return r.inner.ListByIDs(ctx, ids)
}

// ListRecent passes through to the inner repository.
func (r *CachedRepository) ListRecent(ctx context.Context, excludeID string, limit int) ([]models.ContentNode, error) {
	return r.inner.ListRecent(ctx, excludeID, limit)
}

// Invalidate drops the cached entry for one content id.
func (r *CachedRepository) Invalidate(id string) {
	r.cache.Delete("content:" + id)
}
