package cache

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// ErrNotSupported is returned by List and Delete when the backend cannot enumerate entries.
var ErrNotSupported = errors.New("operation not supported by cache backend")

// Instrumented records timings and hit/miss counters around a Store.
type Instrumented struct {
	inner   Store
	metrics *metrics.Collector
}

// Instrument wraps store. A nil collector disables recording.
func Instrument(store Store, c *metrics.Collector) *Instrumented {
	return &Instrumented{inner: store, metrics: c}
}

func (s *Instrumented) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	start := time.Now()
	entry, err := s.inner.Get(ctx, key)
	s.metrics.Observe(metrics.OpCacheGet, start, err)
	return entry, err
}

func (s *Instrumented) Put(ctx context.Context, entry models.CacheEntry) error {
	start := time.Now()
	err := s.inner.Put(ctx, entry)
	s.metrics.Observe(metrics.OpCachePut, start, err)
	return err
}

func (s *Instrumented) List(ctx context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	l, ok := s.inner.(Lister)
	if !ok {
		return nil, ErrNotSupported
	}
	return l.List(ctx, prefix, limit)
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	d, ok := s.inner.(Deleter)
	if !ok {
		return ErrNotSupported
	}
	return d.Delete(ctx, key)
}

func (s *Instrumented) Close() error {
	return s.inner.Close()
}
