package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"standings/pkg/logger"
	"standings/pkg/metrics"
)

// Class groups cache keys that share a time-to-live
type Class string

const (
	ClassEvent    Class = "event"
	ClassSchedule Class = "schedule"
	ClassMatch    Class = "match"
)

// TTLs maps each class to its time-to-live
type TTLs map[Class]time.Duration

// Cache stores JSON encoded values in a Backend under class-scoped keys
type Cache struct {
	backend Backend
	ttls    TTLs
	logger  *logger.Logger
}

// New creates a Cache. Classes missing from ttls are never stored.
func New(backend Backend, ttls TTLs, l *logger.Logger) *Cache {
	return &Cache{
		backend: backend,
		ttls:    ttls,
		logger:  l.Named("cache"),
	}
}

func key(class Class, k string) string {
	return string(class) + ":" + k
}

// Get decodes the cached value into dst and reports whether it was found
func (c *Cache) Get(ctx context.Context, class Class, k string, dst any) (bool, error) {
	data, ok, err := c.backend.Get(ctx, key(class, k))
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
		return false, fmt.Errorf("cache get %s: %w", key(class, k), err)
	}
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(string(class)).Inc()
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// an undecodable entry is as good as absent
		_ = c.backend.Delete(ctx, key(class, k))
		metrics.CacheMissesTotal.WithLabelValues(string(class)).Inc()
		return false, nil
	}
	metrics.CacheHitsTotal.WithLabelValues(string(class)).Inc()
	return true, nil
}

// Set stores v with the class time-to-live
func (c *Cache) Set(ctx context.Context, class Class, k string, v any) error {
	ttl, ok := c.ttls[class]
	if !ok || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key(class, k), err)
	}
	if err := c.backend.Set(ctx, key(class, k), data, ttl); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("cache set %s: %w", key(class, k), err)
	}
	return nil
}

// Invalidate drops one key
func (c *Cache) Invalidate(ctx context.Context, class Class, k string) error {
	if err := c.backend.Delete(ctx, key(class, k)); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("cache invalidate %s: %w", key(class, k), err)
	}
	return nil
}

// Clear drops every key
func (c *Cache) Clear(ctx context.Context) error {
	return c.backend.Clear(ctx)
}

// Remember returns the cached value for class/key or calls load and caches its
// result. Backend failures degrade to calling load; load errors are returned
// and nothing is cached.
func Remember[T any](ctx context.Context, c *Cache, class Class, k string, load func(context.Context) (T, error)) (T, error) {
	var cached T
	ok, err := c.Get(ctx, class, k, &cached)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key(class, k)), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, class, k, v); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key(class, k)), zap.Error(err))
	}
	return v, nil
}
