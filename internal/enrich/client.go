// Package enrich resolves product metadata from the external catalog
// service for every admitted record in a batch.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"salespipe/internal/logger"
	"salespipe/internal/metrics"
	"salespipe/internal/model"
)

// Config controls the catalog client. Zero values fall back to the
// defaults noted on each field.
type Config struct {
	BaseURL        string
	Timeout        time.Duration // per-request, default 5s
	MaxAttempts    int           // per product, default 3
	InitialBackoff time.Duration // default 200ms, doubles per retry
	MaxBackoff     time.Duration // default 800ms
	MaxInflight    int           // concurrent lookups, default 4
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 800 * time.Millisecond
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 4
	}
	return c
}

// Client performs catalog lookups with per-product retry and a
// write-once cache. Safe for concurrent use.
type Client struct {
	cfg   Config
	hc    *http.Client
	cache Cache
	log   *logger.Logger
	mreg  *metrics.Registry
}

func NewClient(cfg Config, cache Cache, log *logger.Logger, mreg *metrics.Registry) *Client {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, hc: newHTTPClient(cfg.Timeout), cache: cache, log: log, mreg: mreg}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Enrich resolves metadata for every record. Exactly one external lookup
// is issued per distinct productId; the result fans back out to every
// record sharing that product. Lookups run concurrently up to
// MaxInflight, and the output order always matches the input order. A
// lookup failure never drops a record: the record proceeds unenriched.
func (c *Client) Enrich(ctx context.Context, records []model.SalesRecord) []model.EnrichedRecord {
	if len(records) == 0 {
		return nil
	}

	var distinct []string
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if !seen[rec.ProductID] {
			seen[rec.ProductID] = true
			distinct = append(distinct, rec.ProductID)
		}
	}

	type outcome struct {
		info  model.ProductInfo
		ok    bool
		cause model.EnrichmentCause
	}
	results := make(map[string]outcome, len(distinct))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxInflight)
	for _, id := range distinct {
		id := id
		g.Go(func() error {
			info, cause := c.lookup(gctx, id)
			mu.Lock()
			results[id] = outcome{info: info, ok: cause == "", cause: cause}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.EnrichedRecord, 0, len(records))
	for _, rec := range records {
		o := results[rec.ProductID]
		er := model.EnrichedRecord{Record: rec}
		if o.ok {
			info := o.info
			er.Product = &info
		} else {
			er.Cause = o.cause
		}
		out = append(out, er)
	}
	return out
}

// lookupState is the retry state machine for one product.
type lookupState int

const (
	stateAttempting lookupState = iota
	stateBackingOff
)

var errNotFound = errors.New("catalog: product not found")

// lookup resolves one product, consulting the cache first. An empty cause
// means success. Failures are record-scoped: they are returned as causes,
// never as errors.
func (c *Client) lookup(ctx context.Context, productID string) (model.ProductInfo, model.EnrichmentCause) {
	if info, ok := c.cache.Get(productID); ok {
		if c.mreg != nil {
			c.mreg.LookupCacheHits.Inc()
		}
		return info, ""
	}

	state := stateAttempting
	backoff := c.cfg.InitialBackoff
	attempt := 0
	for {
		switch state {
		case stateAttempting:
			attempt++
			if c.mreg != nil {
				c.mreg.LookupAttempts.Inc()
			}
			info, err := c.fetchOnce(ctx, productID)
			switch {
			case err == nil:
				c.cache.Put(productID, info)
				return info, ""
			case errors.Is(err, errNotFound):
				// Non-transient: no retry.
				return model.ProductInfo{}, model.CauseNotFound
			case ctx.Err() != nil:
				return model.ProductInfo{}, model.CauseTimeout
			case attempt >= c.cfg.MaxAttempts:
				c.log.Warn("catalog lookup exhausted", "product", productID, "attempts", attempt, "err", err)
				return model.ProductInfo{}, model.CauseExhausted
			default:
				c.log.Debug("catalog lookup retrying", "product", productID, "attempt", attempt, "err", err)
				state = stateBackingOff
			}
		case stateBackingOff:
			if c.mreg != nil {
				c.mreg.LookupRetries.Inc()
			}
			select {
			case <-time.After(backoff):
				backoff *= 2
				if backoff > c.cfg.MaxBackoff {
					backoff = c.cfg.MaxBackoff
				}
				state = stateAttempting
			case <-ctx.Done():
				return model.ProductInfo{}, model.CauseTimeout
			}
		}
	}
}

// fetchOnce issues a single GET {base}/product/{id}. errNotFound signals
// the one non-transient failure; everything else is retryable.
func (c *Client) fetchOnce(ctx context.Context, productID string) (model.ProductInfo, error) {
	start := time.Now()
	defer func() {
		if c.mreg != nil {
			c.mreg.LookupLatencySec.Observe(time.Since(start).Seconds())
		}
	}()

	url := fmt.Sprintf("%s/product/%s", c.cfg.BaseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.ProductInfo{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return model.ProductInfo{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return model.ProductInfo{}, errNotFound
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return model.ProductInfo{}, fmt.Errorf("catalog: status %d", resp.StatusCode)
	}

	var info model.ProductInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return model.ProductInfo{}, fmt.Errorf("catalog: decode: %w", err)
	}
	return info, nil
}
