package events

import (
	"time"

	"rubot/internal/domain"
)

// ChatMessageDTO is the wire form of an inbound chat line.
type ChatMessageDTO struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	IsPrivate bool   `json:"is_private"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessageDTO(msg domain.Message) ChatMessageDTO {
	at := msg.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return ChatMessageDTO{
		Platform:  string(msg.Platform),
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Text:      msg.Text,
		IsPrivate: msg.IsPrivate,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}
