// internal/models/application.go
package models

import "time"

// Lifecycle states for an ApplicationRecord.
const (
	StatusDiscovered         = "DISCOVERED"
	StatusScored             = "SCORED"
	StatusEnriched           = "ENRICHED"
	StatusMessaged           = "MESSAGED"
	StatusDispatched         = "DISPATCHED"
	StatusResponded          = "RESPONDED"
	StatusFollowedUp         = "FOLLOWED_UP"
	StatusArchived           = "ARCHIVED"
	StatusInterviewScheduled = "INTERVIEW_SCHEDULED"
	StatusRejected           = "REJECTED"
)

// TimelineEntry records one status change on an application record.
type TimelineEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// ApplicationRecord owns an opportunity's outreach lifecycle: the
// current status, the ordered timeline of transitions, and follow-up
// scheduling. Records are historical and never deleted.
type ApplicationRecord struct {
	OpportunityID  string          `json:"opportunityId"`
	Status         string          `json:"status"`
	Timeline       []TimelineEntry `json:"timeline"`
	FollowUpCount  int             `json:"followUpCount"`
	NextFollowUpAt *time.Time      `json:"nextFollowUpAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Terminal reports whether the record accepts no further automatic
// transitions.
func (r ApplicationRecord) Terminal() bool {
	switch r.Status {
	case StatusArchived, StatusInterviewScheduled, StatusRejected:
		return true
	}
	return false
}
