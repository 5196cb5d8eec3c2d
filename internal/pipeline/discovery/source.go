// internal/pipeline/discovery/source.go
package discovery

import (
	"context"
	"strings"
	"time"

	"jobhunter-workers/internal/models"
)

// RawListing is one unnormalized posting as a source returned it.
// Field casing and whitespace vary per source; normalization happens in
// the collector, not here.
type RawListing struct {
	Title       string
	Company     string
	Location    string
	Description string
	URL         string
	PostedAt    time.Time
}

// Source fetches listings from one configured board. Implementations
// must be safe for concurrent use; the collector fans out across all
// registered sources.
type Source interface {
	ID() string
	Fetch(ctx context.Context, query string) ([]RawListing, error)
}

// Normalize converts a raw listing into a canonical Opportunity. Title
// and company are whitespace-trimmed before fingerprinting so cosmetic
// differences between boards collapse to the same id.
func Normalize(sourceID string, raw RawListing, now time.Time) *models.Opportunity {
	title := strings.TrimSpace(raw.Title)
	company := strings.TrimSpace(raw.Company)

	discoveredAt := raw.PostedAt
	if discoveredAt.IsZero() {
		discoveredAt = now
	}

	return &models.Opportunity{
		ID:           models.OpportunityID(title, company),
		Title:        title,
		Company:      company,
		Location:     strings.TrimSpace(raw.Location),
		Description:  strings.TrimSpace(raw.Description),
		Source:       sourceID,
		URL:          strings.TrimSpace(raw.URL),
		DiscoveredAt: discoveredAt,
	}
}
