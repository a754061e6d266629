package domain

import "time"

type Platform string

const (
	PlatformTwitch    Platform = "twitch"
	PlatformKick      Platform = "kick"
	PlatformWebSocket Platform = "ws"
)

// Message is one inbound chat line as delivered by a transport adapter.
type Message struct {
	Platform Platform
	// ChannelID is the room the line was said in. Empty for private lines.
	ChannelID string
	UserID    string
	Username  string
	Text      string
	IsPrivate bool

	ReceivedAt time.Time
}

// Scope reports which dispatch scope the line arrived in.
func (m Message) Scope() Scope {
	if m.IsPrivate || m.ChannelID == "" {
		return ScopePrivate
	}
	return ScopeRoom
}

// ReplyTarget is the room for public lines and the sender for private ones.
func (m Message) ReplyTarget() string {
	if m.Scope() == ScopePrivate {
		return m.Username
	}
	return m.ChannelID
}
