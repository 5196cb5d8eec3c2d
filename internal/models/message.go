// internal/models/message.go
package models

import "time"

// Dispatch statuses for an OutreachMessage.
const (
	MessageStatusQueued = "queued"
	MessageStatusSent   = "sent"
	MessageStatusLogged = "logged" // appended to the manual-send outbox
	MessageStatusFailed = "failed"
)

// OutreachMessage is one generated, channel-specific content unit. Its
// ID fingerprints the (opportunity, contact, channel) triple, which is
// what enforces the at-most-one invariant: regeneration produces the
// same ID and overwrites.
type OutreachMessage struct {
	ID            string     `json:"id"`
	OpportunityID string     `json:"opportunityId"`
	ContactID     string     `json:"contactId"`
	Channel       Channel    `json:"channel"`
	Body          string     `json:"body"`
	GeneratedAt   time.Time  `json:"generatedAt"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
}

func MessageID(opportunityID, contactID string, ch Channel) string {
	return Fingerprint(opportunityID, contactID, string(ch))
}
