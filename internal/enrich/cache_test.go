package enrich

import (
	"testing"

	"salespipe/internal/model"
)

func TestMemoryCache_FirstWriteWins(t *testing.T) {
	c := NewMemoryCache()
	if _, ok := c.Get("P1"); ok {
		t.Fatalf("hit on empty cache")
	}
	c.Put("P1", model.ProductInfo{Category: "first", Brand: "b", Rating: 1})
	c.Put("P1", model.ProductInfo{Category: "second", Brand: "b", Rating: 2})

	info, ok := c.Get("P1")
	if !ok {
		t.Fatalf("miss after put")
	}
	if info.Category != "first" {
		t.Fatalf("overwrite: category=%s want first", info.Category)
	}
}

func TestMemoryCache_Range(t *testing.T) {
	c := NewMemoryCache()
	c.Put("P1", model.ProductInfo{Category: "a"})
	c.Put("P2", model.ProductInfo{Category: "b"})

	seen := make(map[string]string)
	err := c.Range(func(id string, info model.ProductInfo) error {
		seen[id] = info.Category
		return nil
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(seen) != 2 || seen["P1"] != "a" || seen["P2"] != "b" {
		t.Fatalf("range saw %v", seen)
	}
}

func newTestPebbleCache(t *testing.T) *PebbleCache {
	t.Helper()
	dir := t.TempDir()
	c, err := NewPebbleCache(dir)
	if err != nil {
		t.Fatalf("open pebble cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPebbleCache_PutGet(t *testing.T) {
	c := newTestPebbleCache(t)
	if _, ok := c.Get("P1"); ok {
		t.Fatalf("hit on empty cache")
	}
	want := model.ProductInfo{Category: "electronics", Brand: "acme", Rating: 4.5}
	c.Put("P1", want)

	got, ok := c.Get("P1")
	if !ok {
		t.Fatalf("miss after put")
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestPebbleCache_FirstWriteWins(t *testing.T) {
	c := newTestPebbleCache(t)
	c.Put("P1", model.ProductInfo{Category: "first"})
	c.Put("P1", model.ProductInfo{Category: "second"})

	got, ok := c.Get("P1")
	if !ok {
		t.Fatalf("miss after put")
	}
	if got.Category != "first" {
		t.Fatalf("overwrite: category=%s want first", got.Category)
	}
}

func TestPebbleCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := NewPebbleCache(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c.Put("P1", model.ProductInfo{Category: "persisted", Brand: "b", Rating: 3})
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := NewPebbleCache(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = c2.Close() })

	got, ok := c2.Get("P1")
	if !ok {
		t.Fatalf("miss after reopen")
	}
	if got.Category != "persisted" {
		t.Fatalf("category=%s want persisted", got.Category)
	}
}

func TestPebbleCache_Range(t *testing.T) {
	c := newTestPebbleCache(t)
	c.Put("P1", model.ProductInfo{Category: "a"})
	c.Put("P2", model.ProductInfo{Category: "b"})

	seen := make(map[string]string)
	err := c.Range(func(id string, info model.ProductInfo) error {
		seen[id] = info.Category
		return nil
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(seen) != 2 || seen["P1"] != "a" || seen["P2"] != "b" {
		t.Fatalf("range saw %v", seen)
	}
}
