// internal/pipeline/enrich/enricher.go
package enrich

import (
	"context"
	"time"

	"jobhunter-workers/internal/common/cache"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/models"
)

// Enrichment is what the pipeline knows about a company after lookup.
// Facts or Contact may be nil when that half of the lookup failed
// non-fatally; generation works with whatever is present.
type Enrichment struct {
	Facts   []string        `json:"facts,omitempty"`
	Contact *models.Contact `json:"contact,omitempty"`
}

// Enricher wraps the provider with a cache and a retry policy. Lookup
// failures degrade rather than abort: a missing contact or empty fact
// set leaves that field nil.
type Enricher struct {
	provider Provider
	cache    *cache.Cache
	retry    *retry.Policy
	limiter  *ratelimit.Limiter
	cacheTTL time.Duration
	log      logger.Logger
}

// New builds an Enricher. The limiter meters upstream lookups against
// the shared external-call budget; nil disables metering. Cache hits
// cost nothing.
func New(provider Provider, c *cache.Cache, policy *retry.Policy, limiter *ratelimit.Limiter, cacheTTL time.Duration, log logger.Logger) *Enricher {
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Enricher{
		provider: provider,
		cache:    c,
		retry:    policy,
		limiter:  limiter,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Enrich looks up company facts and a contact for the opportunity.
// The cache key is the company fingerprint, so every opportunity at the
// same company shares one upstream lookup per TTL window.
func (e *Enricher) Enrich(ctx context.Context, company string) (*Enrichment, error) {
	cacheKey := "enrich:" + models.Fingerprint(company)

	var cached Enrichment
	if e.cache != nil && e.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	result := &Enrichment{}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, ratelimit.GlobalBucket); err != nil {
			return nil, err
		}
	}

	err := e.retry.Do(ctx, "enrich facts", func(ctx context.Context) error {
		facts, err := e.provider.CompanyFacts(ctx, company)
		if err != nil {
			return err
		}
		result.Facts = facts
		return nil
	})
	if err != nil && !nonFatalLookup(err) {
		return nil, err
	}
	if err != nil {
		e.log.Warn("company facts unavailable", map[string]interface{}{
			"company": company,
			"error":   err.Error(),
		})
	}

	err = e.retry.Do(ctx, "enrich contact", func(ctx context.Context) error {
		contact, err := e.provider.FindContact(ctx, company)
		// PARTIAL still carries a usable contact.
		if contact != nil {
			result.Contact = contact
		}
		if err != nil && errors.Is(err, errors.ErrCodePartial) {
			return nil
		}
		return err
	})
	if err != nil && !nonFatalLookup(err) {
		return nil, err
	}
	if err != nil {
		e.log.Warn("contact lookup unavailable", map[string]interface{}{
			"company": company,
			"error":   err.Error(),
		})
	}

	if e.cache != nil && (result.Facts != nil || result.Contact != nil) {
		e.cache.SetJSON(ctx, cacheKey, result, e.cacheTTL)
	}
	return result, nil
}

// nonFatalLookup classifies errors that degrade enrichment instead of
// failing the opportunity.
func nonFatalLookup(err error) bool {
	return errors.Is(err, errors.ErrCodeNotFound) ||
		errors.Is(err, errors.ErrCodePartial) ||
		errors.Is(err, errors.ErrCodeTransientExhausted)
}
