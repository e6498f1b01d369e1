package correlate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
)

// countingStream wraps a Bus and counts how often each unsubscribe runs.
type countingStream struct {
	bus      *chat.Bus
	subs     atomic.Int32
	releases atomic.Int32
}

func newStream() *countingStream {
	return &countingStream{bus: chat.NewBus(zap.NewNop())}
}

func (s *countingStream) Subscribe() (<-chan chat.Message, func()) {
	s.subs.Add(1)
	ch, unsub := s.bus.Subscribe()
	return ch, func() {
		s.releases.Add(1)
		unsub()
	}
}

func TestAwait_MatchBeforeTimeout(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.bus.Publish(chat.Message{AuthorID: "someone", Body: "pong"})
		s.bus.Publish(chat.Message{AuthorID: "maxy", Body: "Pong! 42ms"})
		s.bus.Publish(chat.Message{AuthorID: "maxy", Body: "pong again"})
	}()

	start := time.Now()
	if !c.Await(context.Background(), "maxy", "pong", 2*time.Second) {
		t.Fatal("want match")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("resolved too late: %v", time.Since(start))
	}
	if got := s.releases.Load(); got != 1 {
		t.Fatalf("subscription released %d times, want 1", got)
	}
	if s.bus.Subscribers() != 0 {
		t.Fatalf("subscription leaked")
	}
}

func TestAwait_TimeoutResolvesFalse(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	go s.bus.Publish(chat.Message{AuthorID: "maxy", Body: "something else"})

	timeout := 80 * time.Millisecond
	start := time.Now()
	if c.Await(context.Background(), "maxy", "pong", timeout) {
		t.Fatal("want no match")
	}
	if el := time.Since(start); el < timeout {
		t.Fatalf("resolved after %v, before timeout %v", el, timeout)
	}
	if got := s.releases.Load(); got != 1 {
		t.Fatalf("subscription released %d times, want 1", got)
	}
}

func TestAwait_IgnoresOtherAuthors(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.bus.Publish(chat.Message{AuthorID: "impostor", Body: "pong"})
	}()
	if c.Await(context.Background(), "maxy", "pong", 80*time.Millisecond) {
		t.Fatal("a reply from another author must not count")
	}
}

func TestAwait_InvalidPatternFallsBackToSubstring(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	p := c.Arm("maxy", "pong(")
	s.bus.Publish(chat.Message{AuthorID: "maxy", Body: "PONG( ok"})
	if !p.Wait(context.Background(), time.Second) {
		t.Fatal("want substring fallback match")
	}
}

func TestMatcher(t *testing.T) {
	cases := []struct {
		pattern, body string
		want          bool
	}{
		{"pong", "Pong!", true},
		{"^pong$", "pong", true},
		{"^pong$", "ping pong", false},
		{"p[io]ng", "PING", true},
		{"[unclosed", "text [UNCLOSED here", true},
		{"[unclosed", "nothing", false},
	}
	for _, tc := range cases {
		if got := compile(tc.pattern, zap.NewNop())(tc.body); got != tc.want {
			t.Errorf("compile(%q)(%q) = %v, want %v", tc.pattern, tc.body, got, tc.want)
		}
	}
}

func TestArm_CatchesReplyBeforeWait(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	p := c.Arm("maxy", "pong")
	// reply lands between arming and waiting
	s.bus.Publish(chat.Message{AuthorID: "maxy", Body: "pong"})
	if !p.Wait(context.Background(), 50*time.Millisecond) {
		t.Fatal("reply delivered before Wait was lost")
	}
}

func TestPending_CancelIdempotent(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	p := c.Arm("maxy", "pong")
	p.Cancel()
	p.Cancel()
	if p.Wait(context.Background(), 10*time.Millisecond) {
		t.Fatal("cancelled wait must not match")
	}
	if got := s.releases.Load(); got != 1 {
		t.Fatalf("released %d times, want 1", got)
	}
}

func TestAwait_ContextCancel(t *testing.T) {
	s := newStream()
	c := New(s, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var got bool
	go func() {
		defer wg.Done()
		got = c.Await(ctx, "maxy", "pong", 5*time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	if got {
		t.Fatal("cancelled wait must resolve false")
	}
	if s.bus.Subscribers() != 0 {
		t.Fatal("subscription leaked after cancel")
	}
}
