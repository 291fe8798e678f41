package enrich

import (
	"fmt"
	"sync"

	"salespipe/internal/model"
)

// Cache is the per-product lookup cache. Writes are first-wins: once a
// product has resolved, later writes for the same key are ignored, so
// concurrent duplicate resolutions cannot overwrite each other.
type Cache interface {
	Get(productID string) (model.ProductInfo, bool)
	Put(productID string, info model.ProductInfo)
	Range(fn func(productID string, info model.ProductInfo) error) error
	Close() error
}

// MemoryCache is a thread-safe in-process cache, the default backend.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]model.ProductInfo
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]model.ProductInfo)}
}

func (c *MemoryCache) Get(productID string) (model.ProductInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.data[productID]
	return info, ok
}

func (c *MemoryCache) Put(productID string, info model.ProductInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[productID]; ok {
		return
	}
	c.data[productID] = info
}

func (c *MemoryCache) Range(fn func(productID string, info model.ProductInfo) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.data {
		if err := fn(k, v); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (c *MemoryCache) Close() error { return nil }
