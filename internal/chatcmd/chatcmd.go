// Package chatcmd answers "!health" and "!status" in chat with the uptime
// summary.
package chatcmd

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
)

const errorReply = "Error generating health summary"

type HealthTexter interface {
	HealthText(ctx context.Context, botName string) (string, error)
}

type Responder struct {
	stream  chat.Stream
	sender  chat.Sender
	health  HealthTexter
	botName string
	log     *zap.Logger
}

func New(stream chat.Stream, sender chat.Sender, health HealthTexter, botName string, log *zap.Logger) *Responder {
	return &Responder{stream: stream, sender: sender, health: health, botName: botName, log: log}
}

// Run handles commands until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) {
	msgs, unsub := r.stream.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			r.handle(ctx, m)
		}
	}
}

func isCommand(body string) bool {
	switch strings.TrimSpace(body) {
	case "!health", "!status":
		return true
	}
	return false
}

func (r *Responder) handle(ctx context.Context, m chat.Message) {
	if m.AuthorBot || !isCommand(m.Body) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	reply, err := r.health.HealthText(ctx, r.botName)
	if err != nil {
		r.log.Warn("health_command_error", zap.Error(err))
		reply = errorReply
	}
	if err := r.sender.SendToChannel(ctx, m.ChannelID, reply); err != nil {
		r.log.Warn("health_command_reply_failed", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}
