// internal/models/engagement.go
package models

import "time"

// Engagement event types.
const (
	EngagementLinkClick = "link_click"
	EngagementReply     = "reply"
	EngagementNote      = "note"
)

// EngagementEvent is an externally observed signal tied to prior
// outreach. Events are append-only: once recorded they are never
// mutated.
type EngagementEvent struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	Company       string    `json:"company,omitempty"`
	Channel       Channel   `json:"channel"`
	Type          string    `json:"type"`
	Detail        string    `json:"detail,omitempty"`
	Sentiment     *string   `json:"sentiment,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// HighInterest reports whether the event should escalate the target's
// priority tier. A credibility-link click always counts; a reply counts
// unless the externally supplied sentiment is negative.
func (e EngagementEvent) HighInterest() bool {
	switch e.Type {
	case EngagementLinkClick:
		return true
	case EngagementReply:
		return e.Sentiment == nil || *e.Sentiment != "negative"
	}
	return false
}
