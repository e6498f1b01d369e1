package notify

import (
	"context"
	"errors"
)

// DirectMessenger is the slice of chat.Sender needed to DM the owner.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, userID, text string) error
}

// Direct delivers notifications as a chat direct message to one user.
type Direct struct {
	Sender DirectMessenger
	UserID string
}

func NewDirect(sender DirectMessenger, userID string) *Direct {
	if sender == nil || userID == "" {
		return nil
	}
	return &Direct{Sender: sender, UserID: userID}
}

func (d *Direct) Send(ctx context.Context, title, text string) error {
	if d == nil || d.Sender == nil {
		return errors.New("direct message disabled")
	}
	body := title
	if text != "" {
		body += "\n" + text
	}
	return d.Sender.SendDirectMessage(ctx, d.UserID, body)
}
