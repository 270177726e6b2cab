package catalog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/catalog"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

type countingCatalog struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
	err    error
}

func (c *countingCatalog) PriceOf(_ context.Context, productID string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[productID]++
	if c.err != nil {
		return decimal.Decimal{}, c.err
	}
	price, ok := c.prices[productID]
	if !ok {
		return decimal.Decimal{}, domain.ErrProductNotFound
	}
	return price, nil
}

func (c *countingCatalog) callsFor(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[productID]
}

func TestCached_ServesRepeatedLookupsFromCache(t *testing.T) {
	source := &countingCatalog{prices: map[string]decimal.Decimal{"prod1": decimal.RequireFromString("79.99")}}
	reg := prometheus.NewRegistry()
	cached, err := catalog.NewCached(source, 8, catalog.WithRegisterer(reg))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		price, err := cached.PriceOf(context.Background(), "prod1")
		require.NoError(t, err)
		require.True(t, price.Equal(decimal.RequireFromString("79.99")))
	}

	require.Equal(t, 1, source.callsFor("prod1"))
	require.Equal(t, 1, cached.Len())
	require.Equal(t, 1, testutil.CollectAndCount(reg, "orderstore_catalog_cache_hits_total"))
}

func TestCached_ExpiresEntries(t *testing.T) {
	source := &countingCatalog{prices: map[string]decimal.Decimal{"prod1": decimal.RequireFromString("10")}}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cached, err := catalog.NewCached(source, 8,
		catalog.WithTTL(time.Minute),
		catalog.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	_, err = cached.PriceOf(context.Background(), "prod1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	source.prices["prod1"] = decimal.RequireFromString("12")

	price, err := cached.PriceOf(context.Background(), "prod1")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("12")), "expired entry must be refreshed, got %s", price)
	require.Equal(t, 2, source.callsFor("prod1"))
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	source := &countingCatalog{prices: map[string]decimal.Decimal{}}
	cached, err := catalog.NewCached(source, 8)
	require.NoError(t, err)

	_, err = cached.PriceOf(context.Background(), "missing")
	require.True(t, errors.Is(err, domain.ErrProductNotFound))
	_, err = cached.PriceOf(context.Background(), "missing")
	require.True(t, errors.Is(err, domain.ErrProductNotFound))

	require.Equal(t, 2, source.callsFor("missing"))
	require.Zero(t, cached.Len())
}

func TestCached_Invalidate(t *testing.T) {
	source := &countingCatalog{prices: map[string]decimal.Decimal{"prod1": decimal.RequireFromString("1")}}
	cached, err := catalog.NewCached(source, 8)
	require.NoError(t, err)

	_, err = cached.PriceOf(context.Background(), "prod1")
	require.NoError(t, err)
	cached.Invalidate("prod1")
	_, err = cached.PriceOf(context.Background(), "prod1")
	require.NoError(t, err)

	require.Equal(t, 2, source.callsFor("prod1"))
}

func TestNewCached_RequiresSource(t *testing.T) {
	_, err := catalog.NewCached(nil, 8)
	require.Error(t, err)
}
