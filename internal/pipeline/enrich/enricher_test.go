// internal/pipeline/enrich/enricher_test.go
package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhunter-workers/internal/common/cache"
	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/models"
)

type stubProvider struct {
	factsFunc   func(ctx context.Context, company string) ([]string, error)
	contactFunc func(ctx context.Context, company string) (*models.Contact, error)

	factsCalls   int
	contactCalls int
}

func (s *stubProvider) CompanyFacts(ctx context.Context, company string) ([]string, error) {
	s.factsCalls++
	return s.factsFunc(ctx, company)
}

func (s *stubProvider) FindContact(ctx context.Context, company string) (*models.Contact, error) {
	s.contactCalls++
	return s.contactFunc(ctx, company)
}

func testCache(t *testing.T) *cache.Cache {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.New(client, logger.NewNoOpLogger())
}

func fastRetry() *retry.Policy {
	p := retry.New(logger.NewNoOpLogger())
	p.BaseDelay = time.Millisecond
	return p
}

func TestEnrichFullLookup(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return []string{"raised a Series A in 2025"}, nil
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "dana@acme.example"}, nil
		},
	}

	e := New(provider, testCache(t), fastRetry(), nil, time.Hour, logger.NewNoOpLogger())
	got, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"raised a Series A in 2025"}, got.Facts)
	require.NotNil(t, got.Contact)
	assert.Equal(t, "Dana", got.Contact.Name)
}

func TestEnrichMissingFactsDegrades(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return nil, errors.NewNotFoundError("company facts", company)
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "dana@acme.example"}, nil
		},
	}

	e := New(provider, testCache(t), fastRetry(), nil, time.Hour, logger.NewNoOpLogger())
	got, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Nil(t, got.Facts)
	assert.NotNil(t, got.Contact)
	// NOT_FOUND is not retryable, one call only.
	assert.Equal(t, 1, provider.factsCalls)
}

func TestEnrichPartialContactKeepsContact(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return []string{"fact"}, nil
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			c := &models.Contact{Name: "Dana", Company: company}
			return c, errors.NewPartialError("contact", "no channel identifiers")
		},
	}

	e := New(provider, testCache(t), fastRetry(), nil, time.Hour, logger.NewNoOpLogger())
	got, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	require.NotNil(t, got.Contact)
	assert.Empty(t, got.Contact.Email)
}

func TestEnrichTransientRetriesThenDegrades(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return nil, errors.NewTransientError("enrichment request", assert.AnError)
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "d@a.example"}, nil
		},
	}

	e := New(provider, testCache(t), fastRetry(), nil, time.Hour, logger.NewNoOpLogger())
	got, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Nil(t, got.Facts)
	assert.Equal(t, 3, provider.factsCalls)
}

func TestEnrichUsesCacheOnSecondLookup(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return []string{"fact"}, nil
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "d@a.example"}, nil
		},
	}

	e := New(provider, testCache(t), fastRetry(), nil, time.Hour, logger.NewNoOpLogger())
	_, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	_, err = e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.factsCalls)
	assert.Equal(t, 1, provider.contactCalls)
}

func TestEnrichSpendsGlobalCallBudget(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return []string{"fact"}, nil
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "d@a.example"}, nil
		},
	}

	limiter := ratelimit.New(logger.NewNoOpLogger())
	limiter.Configure(ratelimit.GlobalBucket, 10, time.Hour)

	e := New(provider, testCache(t), fastRetry(), limiter, time.Hour, logger.NewNoOpLogger())
	_, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Spent(ratelimit.GlobalBucket))

	// Cache hit costs nothing.
	_, err = e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Spent(ratelimit.GlobalBucket))
}

func TestEnrichBlockedByExhaustedGlobalBudget(t *testing.T) {
	provider := &stubProvider{
		factsFunc: func(ctx context.Context, company string) ([]string, error) {
			return []string{"fact"}, nil
		},
		contactFunc: func(ctx context.Context, company string) (*models.Contact, error) {
			return &models.Contact{Name: "Dana", Company: company, Email: "d@a.example"}, nil
		},
	}

	limiter := ratelimit.New(logger.NewNoOpLogger())
	limiter.Configure(ratelimit.GlobalBucket, 1, time.Hour)

	e := New(provider, testCache(t), fastRetry(), limiter, time.Hour, logger.NewNoOpLogger())
	_, err := e.Enrich(context.Background(), "Acme")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Enrich(ctx, "Globex")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRateLimited, errors.CodeOf(err))
	assert.Equal(t, 1, provider.factsCalls, "no lookup paid once the budget is dry")
}

func TestHTTPProviderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.EnrichmentConfig{BaseURL: srv.URL}, logger.NewNoOpLogger())
	_, err := p.CompanyFacts(context.Background(), "Ghost Co")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestHTTPProviderContactWithoutChannelsIsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Dana","confidence":0.4}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.EnrichmentConfig{BaseURL: srv.URL}, logger.NewNoOpLogger())
	contact, err := p.FindContact(context.Background(), "Acme")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePartial, errors.CodeOf(err))
	require.NotNil(t, contact)
	assert.Equal(t, "Dana", contact.Name)
}
