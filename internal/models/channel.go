// internal/models/channel.go
package models

// Channel is one of the closed set of communication media. Each channel
// carries its own rate limit and content constraints.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
	ChannelTwitter  Channel = "twitter"
)

// AllChannels lists the closed channel set in dispatch-preference order.
var AllChannels = []Channel{ChannelEmail, ChannelLinkedIn, ChannelTwitter}

func ValidChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelLinkedIn, ChannelTwitter:
		return true
	}
	return false
}
