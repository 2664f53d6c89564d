package cache

import (
	"strconv"
	"time"

	"github.com/pairsight/statarb/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// Cache provides fast in-memory caching for market data. History series
// are cached longer than latest prices since screening windows only roll
// once per day.
type Cache struct {
	series *gocache.Cache
	prices *gocache.Cache
	ttl    time.Duration
}

// NewCache creates a new cache instance
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		series: gocache.New(ttl*6, ttl*12), // history rolls slowly
		prices: gocache.New(ttl, ttl*2),
		ttl:    ttl,
	}
}

// GetSeries retrieves a cached price series
func (c *Cache) GetSeries(symbol string, days int) (*models.PriceSeries, bool) {
	if val, found := c.series.Get(seriesKey(symbol, days)); found {
		if s, ok := val.(*models.PriceSeries); ok {
			return s, true
		}
	}
	return nil, false
}

// SetSeries caches a price series
func (c *Cache) SetSeries(symbol string, days int, s *models.PriceSeries) {
	c.series.Set(seriesKey(symbol, days), s, c.ttl*6)
}

// GetPrice retrieves the latest cached price for a symbol
func (c *Cache) GetPrice(symbol string) (float64, bool) {
	if val, found := c.prices.Get(symbol); found {
		if p, ok := val.(float64); ok {
			return p, true
		}
	}
	return 0, false
}

// SetPrice caches the latest price
func (c *Cache) SetPrice(symbol string, price float64) {
	c.prices.Set(symbol, price, c.ttl)
}

// UpdatePriceFromStream records a streamed bar close as the latest price.
func (c *Cache) UpdatePriceFromStream(symbol string, price float64) {
	c.prices.Set(symbol, price, c.ttl)
}

// Snapshot returns the latest prices of the requested symbols. Symbols
// with no fresh price are omitted.
func (c *Cache) Snapshot(symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := c.GetPrice(s); ok {
			out[s] = p
		}
	}
	return out
}

// Clear removes all cached data
func (c *Cache) Clear() {
	c.series.Flush()
	c.prices.Flush()
}

// Stats returns cache statistics
type Stats struct {
	SeriesCount int
	PriceCount  int
}

// GetStats returns current cache statistics
func (c *Cache) GetStats() Stats {
	return Stats{
		SeriesCount: c.series.ItemCount(),
		PriceCount:  c.prices.ItemCount(),
	}
}

func seriesKey(symbol string, days int) string {
	return symbol + "/" + strconv.Itoa(days)
}
