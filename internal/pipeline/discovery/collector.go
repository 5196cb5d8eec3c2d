// internal/pipeline/discovery/collector.go
package discovery

import (
	"context"
	"sync"
	"time"

	"jobhunter-workers/internal/common/cache"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/models"
)

// Collector fans a query out across every registered source and merges
// the results into a deduplicated opportunity set. One failing source
// never blocks the cycle: its error is logged and its results are
// simply absent.
type Collector struct {
	sources []Source
	retry   *retry.Policy
	cache   *cache.Cache
	ttl     time.Duration
	log     logger.Logger
	now     func() time.Time
}

// NewCollector builds a collector over the given sources. The retry
// policy and cache are optional; when the cache is present, each
// source's listings are reused for ttl before the board is hit again.
func NewCollector(sources []Source, policy *retry.Policy, c *cache.Cache, ttl time.Duration, log logger.Logger) *Collector {
	return &Collector{sources: sources, retry: policy, cache: c, ttl: ttl, log: log, now: time.Now}
}

// Collect runs every source concurrently and returns the merged,
// deduplicated listings. The returned slice is ordered by discovery
// time, newest last.
func (c *Collector) Collect(ctx context.Context, query string) []*models.Opportunity {
	type result struct {
		listings []RawListing
		err      error
	}

	// Results are merged in registration order so dedup winners are
	// deterministic regardless of which fetch finishes first.
	results := make([]result, len(c.sources))
	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			listings, err := c.fetch(ctx, src, query)
			results[i] = result{listings: listings, err: err}
		}(i, src)
	}
	wg.Wait()

	now := c.now()
	var all []*models.Opportunity
	for i, res := range results {
		if res.err != nil {
			c.log.Warn("source fetch failed, continuing without it", map[string]interface{}{
				"source": c.sources[i].ID(),
				"error":  res.err.Error(),
			})
			continue
		}
		for _, raw := range res.listings {
			all = append(all, Normalize(c.sources[i].ID(), raw, now))
		}
	}

	deduped := Dedup(all)
	c.log.Info("discovery collected", map[string]interface{}{
		"sources":  len(c.sources),
		"raw":      len(all),
		"distinct": len(deduped),
	})
	return deduped
}

// fetch pulls listings from one source, consulting the cache first and
// retrying transient fetch failures.
func (c *Collector) fetch(ctx context.Context, src Source, query string) ([]RawListing, error) {
	key := "discovery:" + models.Fingerprint(src.ID(), query)
	if c.cache != nil {
		var cached []RawListing
		if c.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	var listings []RawListing
	fetchOnce := func(ctx context.Context) error {
		var err error
		listings, err = src.Fetch(ctx, query)
		return err
	}

	var err error
	if c.retry != nil {
		err = c.retry.Do(ctx, "fetch "+src.ID(), fetchOnce)
	} else {
		err = fetchOnce(ctx)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, key, listings, c.ttl)
	}
	return listings, nil
}
