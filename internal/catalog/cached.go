// Package catalog содержит обёртки над источником цен товаров.
package catalog

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = time.Minute
)

type cacheEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// Cached кэширует цены каталога в LRU с ограниченным временем жизни.
// Ошибки не кэшируются.
type Cached struct {
	next  domain.Catalog
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	now   func() time.Time

	hits   prometheus.Counter
	misses prometheus.Counter
}

// Option настраивает Cached.
type Option func(*Cached)

// WithTTL задаёт время жизни записи. Неположительное значение игнорируется.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Cached) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRegisterer регистрирует счётчики попаданий и промахов.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(c *Cached) {
		if registerer == nil {
			return
		}
		c.hits = registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_catalog_cache_hits_total",
			Help: "Total number of catalog price lookups served from cache",
		})
		c.misses = registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_catalog_cache_misses_total",
			Help: "Total number of catalog price lookups forwarded to the source",
		})
	}
}

// NewCached оборачивает next кэшем на size записей.
func NewCached(next domain.Catalog, size int, opts ...Option) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}

	c := &Cached{
		next:  next,
		cache: cache,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ domain.Catalog = (*Cached)(nil)

// PriceOf возвращает цену из кэша либо запрашивает источник.
func (c *Cached) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	now := c.now()
	if entry, ok := c.cache.Get(productID); ok {
		if now.Before(entry.expiresAt) {
			inc(c.hits)
			return entry.price, nil
		}
		c.cache.Remove(productID)
	}
	inc(c.misses)

	price, err := c.next.PriceOf(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	c.cache.Add(productID, cacheEntry{price: price, expiresAt: now.Add(c.ttl)})
	return price, nil
}

// Invalidate удаляет цену товара из кэша.
func (c *Cached) Invalidate(productID string) {
	c.cache.Remove(productID)
}

// Len возвращает число записей в кэше.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func inc(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}
