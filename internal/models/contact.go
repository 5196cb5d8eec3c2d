// internal/models/contact.go
package models

import "time"

// Contact is a human associated with an opportunity's company. Channel
// identifiers are each optional; enrichment fills in what it can find.
// Contacts are never deleted, only refreshed when their record goes
// stale.
type Contact struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Company        string     `json:"company"`
	LinkedInHandle string     `json:"linkedinHandle,omitempty"`
	TwitterHandle  string     `json:"twitterHandle,omitempty"`
	Email          string     `json:"email,omitempty"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	Confidence     float64    `json:"confidence"`
	RefreshedAt    time.Time  `json:"refreshedAt"`
}

func ContactID(company, name string) string {
	return Fingerprint(company, name)
}

// HandleFor returns the contact's identifier on the given channel, empty
// when unknown.
func (c Contact) HandleFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelLinkedIn:
		return c.LinkedInHandle
	case ChannelTwitter:
		return c.TwitterHandle
	}
	return ""
}
