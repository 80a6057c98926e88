package scoring

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache gets a non-positive size
const DefaultCacheSize = 10000

// Cache provides in-memory LRU caching of scores by input hash
type Cache struct {
	cache *lru.Cache[string, float64]
}

// NewCache creates a new score cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, float64](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, float64](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a cached score
func (c *Cache) Get(hash string) (float64, bool) {
	return c.cache.Get(hash)
}

// Set stores a score
func (c *Cache) Set(hash string, score float64) {
	c.cache.Add(hash, score)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}
