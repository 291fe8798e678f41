package enrich

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"salespipe/internal/model"
)

// PebbleCache persists resolved catalog metadata across runs so repeat
// batches skip already-known products. Selected via config; the pipeline
// works identically with MemoryCache.
type PebbleCache struct {
	db *pebble.DB
}

func NewPebbleCache(dir string) (*PebbleCache, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleCache{db: d}, nil
}

func (c *PebbleCache) Close() error { return c.db.Close() }

func encodeInfo(info model.ProductInfo) ([]byte, error) { return json.Marshal(info) }

func decodeInfo(val []byte) (model.ProductInfo, error) {
	var info model.ProductInfo
	if err := json.Unmarshal(val, &info); err != nil {
		return model.ProductInfo{}, err
	}
	return info, nil
}

func (c *PebbleCache) Get(productID string) (model.ProductInfo, bool) {
	v, closer, err := c.db.Get([]byte(productID))
	if err != nil {
		return model.ProductInfo{}, false
	}
	defer closer.Close()
	info, err := decodeInfo(v)
	if err != nil {
		return model.ProductInfo{}, false
	}
	return info, true
}

// Put stores the first resolution for a product; existing keys are kept.
func (c *PebbleCache) Put(productID string, info model.ProductInfo) {
	k := []byte(productID)
	if _, closer, err := c.db.Get(k); err == nil {
		_ = closer.Close()
		return
	} else if err != pebble.ErrNotFound {
		return
	}
	b, err := encodeInfo(info)
	if err != nil {
		return
	}
	_ = c.db.Set(k, b, pebble.NoSync)
}

func (c *PebbleCache) Range(fn func(productID string, info model.ProductInfo) error) error {
	it, err := c.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		info, err := decodeInfo(v)
		if err != nil {
			return err
		}
		if err := fn(string(k), info); err != nil {
			return err
		}
	}
	return nil
}
