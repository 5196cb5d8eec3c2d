// internal/pipeline/enrich/provider.go
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
)

// Provider looks up company facts and outreach contacts from an external
// enrichment API.
type Provider interface {
	CompanyFacts(ctx context.Context, company string) ([]string, error)
	FindContact(ctx context.Context, company string) (*models.Contact, error)
}

// HTTPProvider talks to the enrichment API over REST.
type HTTPProvider struct {
	cfg        config.EnrichmentConfig
	httpClient *http.Client
	log        logger.Logger
}

func NewHTTPProvider(cfg config.EnrichmentConfig, log logger.Logger) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

type contactResponse struct {
	Name           string  `json:"name"`
	LinkedInHandle string  `json:"linkedinHandle"`
	TwitterHandle  string  `json:"twitterHandle"`
	Email          string  `json:"email"`
	LastActivityAt *string `json:"lastActivityAt"`
	Confidence     float64 `json:"confidence"`
}

func (p *HTTPProvider) CompanyFacts(ctx context.Context, company string) ([]string, error) {
	body, err := p.get(ctx, "/v1/companies/"+url.PathEscape(company)+"/facts")
	if err != nil {
		return nil, err
	}

	var parsed factsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewTransientError("enrichment facts decode", err)
	}
	if len(parsed.Facts) == 0 {
		return nil, errors.NewNotFoundError("company facts", company)
	}
	return parsed.Facts, nil
}

func (p *HTTPProvider) FindContact(ctx context.Context, company string) (*models.Contact, error) {
	body, err := p.get(ctx, "/v1/companies/"+url.PathEscape(company)+"/contact")
	if err != nil {
		return nil, err
	}

	var parsed contactResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewTransientError("enrichment contact decode", err)
	}
	if parsed.Name == "" {
		return nil, errors.NewNotFoundError("contact", company)
	}

	contact := &models.Contact{
		ID:             models.ContactID(company, parsed.Name),
		Name:           parsed.Name,
		Company:        company,
		LinkedInHandle: parsed.LinkedInHandle,
		TwitterHandle:  parsed.TwitterHandle,
		Email:          parsed.Email,
		Confidence:     parsed.Confidence,
		RefreshedAt:    time.Now(),
	}
	if parsed.LastActivityAt != nil {
		if at, err := time.Parse(time.RFC3339, *parsed.LastActivityAt); err == nil {
			contact.LastActivityAt = &at
		}
	}

	// A contact with a name but no reachable channel is only partially
	// useful; the caller decides which channels to skip.
	if contact.Email == "" && contact.LinkedInHandle == "" && contact.TwitterHandle == "" {
		return contact, errors.NewPartialError("contact", "no channel identifiers for "+company)
	}
	return contact, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, errors.NewTransientError("enrichment request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("enrichment request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFoundError("enrichment resource", path)
	case resp.StatusCode == http.StatusOK:
	default:
		return nil, errors.NewTransientError("enrichment request",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewTransientError("enrichment response read", err)
	}
	return body, nil
}
