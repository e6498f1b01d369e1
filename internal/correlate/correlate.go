// Package correlate waits for a reply from a given author that matches a
// pattern, bounded by a timeout.
package correlate

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
)

type Correlator struct {
	stream chat.Stream
	log    *zap.Logger
}

func New(stream chat.Stream, log *zap.Logger) *Correlator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Correlator{stream: stream, log: log}
}

// Pending is an armed subscription. Exactly one of Wait or Cancel should be
// called; both release the subscription and either may be repeated.
type Pending struct {
	authorID string
	match    func(string) bool
	msgs     <-chan chat.Message
	unsub    func()
	once     sync.Once
}

// Arm subscribes before anything is sent so a fast reply cannot be missed.
func (c *Correlator) Arm(authorID, pattern string) *Pending {
	msgs, unsub := c.stream.Subscribe()
	return &Pending{
		authorID: authorID,
		match:    compile(pattern, c.log),
		msgs:     msgs,
		unsub:    unsub,
	}
}

// Await is Arm followed by Wait.
func (c *Correlator) Await(ctx context.Context, authorID, pattern string, timeout time.Duration) bool {
	return c.Arm(authorID, pattern).Wait(ctx, timeout)
}

// Wait reports whether a matching message from the author arrived within
// timeout. It returns false when ctx ends first.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) bool {
	defer p.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case m, ok := <-p.msgs:
			if !ok {
				return false
			}
			if m.AuthorID != p.authorID {
				continue
			}
			if p.match(m.Body) {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Pending) Cancel() {
	p.once.Do(p.unsub)
}

// compile builds a case-insensitive matcher. Patterns that are not valid
// regular expressions are matched as plain substrings.
func compile(pattern string, log *zap.Logger) func(string) bool {
	rx, err := regexp.Compile("(?i)" + pattern)
	if err == nil {
		return rx.MatchString
	}
	log.Debug("pattern_not_regexp", zap.String("pattern", pattern), zap.Error(err))
	needle := strings.ToLower(pattern)
	return func(body string) bool {
		return strings.Contains(strings.ToLower(body), needle)
	}
}
