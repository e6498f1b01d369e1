package chat

import (
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 32

// Bus fans inbound messages out to every current subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the message.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
	log  *zap.Logger
}

type subscription struct {
	ch   chan Message
	once sync.Once
}

var _ Stream = (*Bus)(nil)

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: make(map[*subscription]struct{}), log: log}
}

func (b *Bus) Subscribe() (<-chan Message, func()) {
	s := &subscription{ch: make(chan Message, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(m Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- m:
		default:
			b.log.Warn("bus_subscriber_slow", zap.String("message_id", m.ID))
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
