package location

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultTerrainPrecision is the default cache grid in degrees (about 1.1 m).
const DefaultTerrainPrecision = 1e-5

// TerrainLookupTimeout bounds one shared elevation query.
const TerrainLookupTimeout = 10 * time.Second

// TerrainCache memoizes elevation lookups on a quantized (lon, lat) grid.
// Entries are never evicted for the lifetime of the cache.
type TerrainCache struct {
	precision float64
	provider  ElevationProvider
	entries   cmap.ConcurrentMap[string, float64]
	group     singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTerrainCache creates a cache in front of provider. A non-positive
// precision falls back to DefaultTerrainPrecision.
func NewTerrainCache(provider ElevationProvider, precision float64) *TerrainCache {
	if precision <= 0 || math.IsNaN(precision) || math.IsInf(precision, 0) {
		precision = DefaultTerrainPrecision
	}
	return &TerrainCache{
		precision: precision,
		provider:  provider,
		entries:   cmap.New[float64](),
	}
}

// Key returns the quantized cache key for a coordinate.
func (c *TerrainCache) Key(lat, lon float64) string {
	return strconv.FormatInt(int64(math.Round(lon/c.precision)), 10) + "_" +
		strconv.FormatInt(int64(math.Round(lat/c.precision)), 10)
}

// Height returns the cached elevation for the coordinate's grid cell, querying
// the provider once per cell on a miss. Concurrent misses for the same cell
// share a single query, which is not tied to any one caller's cancellation.
func (c *TerrainCache) Height(ctx context.Context, lat, lon float64) (float64, error) {
	key := c.Key(lat, lon)
	if h, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return h, nil
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if h, ok := c.entries.Get(key); ok {
			return h, nil
		}
		c.misses.Add(1)
		qctx, cancel := context.WithTimeout(lookupCtx, TerrainLookupTimeout)
		defer cancel()
		h, err := c.provider.Elevation(qctx, lat, lon)
		if err != nil {
			return 0.0, err
		}
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return 0.0, fmt.Errorf("elevation provider returned %v", h)
		}
		c.entries.Set(key, h)
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, fmt.Errorf("terrain lookup failed: %w", res.Err)
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, fmt.Errorf("terrain lookup failed: %w", ctx.Err())
	}
}

// Len returns the number of cached grid cells.
func (c *TerrainCache) Len() int {
	return c.entries.Count()
}

// Stats returns the number of cache hits and provider queries so far.
func (c *TerrainCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
