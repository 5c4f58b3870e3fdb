// Package cache wraps a storage.Store with a two-level read-through cache
// for the ownership records walked by every access check.
//
// Only projects, charts and datasets are cached. Their parent ids never
// change after creation, so a stale entry can at worst outlive a delete by
// one TTL. Data requests and memberships always go to the backing store.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/storage"
)

const (
	kindProject = "project"
	kindChart   = "chart"
	kindDataset = "dataset"
)

// Store is a storage.Store whose ownership lookups are cached
type Store struct {
	storage.Store

	redis    *RedisClient
	projects *lru.LRU[int64, models.Project]
	charts   *lru.LRU[int64, models.Chart]
	datasets *lru.LRU[int64, models.Dataset]
	metrics  *observability.Metrics
	logger   *observability.Logger
}

var _ storage.Store = (*Store)(nil)

// Options configures the cache layers. Redis is optional.
type Options struct {
	Redis   *RedisClient
	Size    int
	L1TTL   time.Duration
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// New wraps backing with an in-process LRU and, when opts.Redis is set, a Redis layer
func New(backing storage.Store, opts Options) *Store {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.L1TTL <= 0 {
		opts.L1TTL = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}

	return &Store{
		Store:    backing,
		redis:    opts.Redis,
		projects: lru.NewLRU[int64, models.Project](opts.Size, nil, opts.L1TTL),
		charts:   lru.NewLRU[int64, models.Chart](opts.Size, nil, opts.L1TTL),
		datasets: lru.NewLRU[int64, models.Dataset](opts.Size, nil, opts.L1TTL),
		metrics:  opts.Metrics,
		logger:   opts.Logger.WithField("component", "ownership_cache"),
	}
}

// readThrough checks L1, then Redis, then the backing store, filling the
// layers it missed. Redis failures are logged and skipped.
func readThrough[T any](
	ctx context.Context,
	s *Store,
	kind string,
	id int64,
	l1 *lru.LRU[int64, T],
	load func(context.Context, int64) (*T, error),
) (*T, error) {
	if v, ok := l1.Get(id); ok {
		s.metrics.CacheHitsTotal.WithLabelValues("l1", kind).Inc()
		return &v, nil
	}

	if s.redis != nil {
		var v T
		found, err := s.redis.get(ctx, kind, id, &v)
		if err != nil {
			s.logger.WithError(err).Warnf("redis lookup for %s %d failed", kind, id)
		} else if found {
			s.metrics.CacheHitsTotal.WithLabelValues("redis", kind).Inc()
			l1.Add(id, v)
			return &v, nil
		}
	}

	s.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()

	loaded, err := load(ctx, id)
	if err != nil {
		return nil, err
	}

	l1.Add(id, *loaded)
	if s.redis != nil {
		if err := s.redis.set(ctx, kind, id, loaded); err != nil {
			s.logger.WithError(err).Warnf("redis store for %s %d failed", kind, id)
		}
	}

	out := *loaded
	return &out, nil
}

// GetProject returns a project, served from cache when possible
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return readThrough(ctx, s, kindProject, id, s.projects, s.Store.GetProject)
}

// GetChart returns a chart, served from cache when possible
func (s *Store) GetChart(ctx context.Context, id int64) (*models.Chart, error) {
	return readThrough(ctx, s, kindChart, id, s.charts, s.Store.GetChart)
}

// GetDataset returns a dataset, served from cache when possible
func (s *Store) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	return readThrough(ctx, s, kindDataset, id, s.datasets, s.Store.GetDataset)
}

// DeleteDataset deletes through to the backing store and drops the cached dataset
func (s *Store) DeleteDataset(ctx context.Context, id int64) error {
	if err := s.Store.DeleteDataset(ctx, id); err != nil {
		return err
	}

	s.datasets.Remove(id)
	if s.redis != nil {
		if err := s.redis.invalidate(ctx, kindDataset, id); err != nil {
			s.logger.WithError(err).Warnf("redis invalidate for dataset %d failed", id)
		}
	}
	return nil
}
