// Package chat is the narrow messaging capability the monitor needs from the
// chat platform: post to a channel, DM a user, and observe inbound messages.
package chat

import (
	"context"
	"time"
)

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	AuthorBot bool      `json:"author_bot"`
	Body      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender delivers outbound messages. A nil error means the platform accepted it.
type Sender interface {
	SendToChannel(ctx context.Context, channelID, text string) error
	SendDirectMessage(ctx context.Context, userID, text string) error
}

// Stream hands out subscriptions to inbound messages. The returned func
// unsubscribes; it is safe to call more than once.
type Stream interface {
	Subscribe() (<-chan Message, func())
}
