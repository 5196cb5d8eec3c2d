// internal/models/opportunity.go
package models

import "time"

// Opportunity is a discovered unit of interest. Its ID is the
// fingerprint of source-independent identity fields, so the same role
// seen through two boards collapses to one record.
type Opportunity struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Company      string     `json:"company"`
	Location     string     `json:"location,omitempty"`
	Description  string     `json:"description,omitempty"`
	Source       string     `json:"source"`
	URL          string     `json:"url,omitempty"`
	DiscoveredAt time.Time  `json:"discoveredAt"`
	Score        *int       `json:"score,omitempty"`
	ScoreReasons []string   `json:"scoreReasons,omitempty"`
	PriorityTier int        `json:"priorityTier"`
	Contacted    bool       `json:"contacted"`
}

// OpportunityID builds the dedup fingerprint. The source tag is excluded
// deliberately: identical title+company from different boards is the
// same opportunity.
func OpportunityID(title, company string) string {
	return Fingerprint(title, company)
}
