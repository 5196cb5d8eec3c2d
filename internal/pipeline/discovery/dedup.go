// internal/pipeline/discovery/dedup.go
package discovery

import "jobhunter-workers/internal/models"

// Dedup collapses opportunities sharing a fingerprint into one record.
// The first occurrence wins; later duplicates only contribute detail
// fields the winner is missing. Order of first occurrence is preserved,
// and the input is never mutated beyond the winners.
func Dedup(opportunities []*models.Opportunity) []*models.Opportunity {
	seen := make(map[string]*models.Opportunity, len(opportunities))
	var out []*models.Opportunity

	for _, opp := range opportunities {
		winner, dup := seen[opp.ID]
		if !dup {
			seen[opp.ID] = opp
			out = append(out, opp)
			continue
		}
		if winner.Location == "" {
			winner.Location = opp.Location
		}
		if winner.Description == "" {
			winner.Description = opp.Description
		}
		if winner.URL == "" {
			winner.URL = opp.URL
		}
	}
	return out
}

// FilterKnown drops opportunities already persisted in a previous cycle.
func FilterKnown(opportunities []*models.Opportunity, known map[string]bool) []*models.Opportunity {
	var fresh []*models.Opportunity
	for _, opp := range opportunities {
		if !known[opp.ID] {
			fresh = append(fresh, opp)
		}
	}
	return fresh
}
