package chatcmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
)

type fakeSender struct {
	mu    sync.Mutex
	posts []string
	chans []string
}

func (f *fakeSender) SendToChannel(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	f.chans = append(f.chans, channelID)
	return nil
}

func (f *fakeSender) SendDirectMessage(ctx context.Context, userID, text string) error { return nil }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthText(ctx context.Context, botName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return botName + " health summary", nil
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name string
		msg  chat.Message
		want bool
	}{
		{"health", chat.Message{ChannelID: "C", Body: "!health"}, true},
		{"status with spaces", chat.Message{ChannelID: "C", Body: "  !status \n"}, true},
		{"bots ignored", chat.Message{ChannelID: "C", Body: "!health", AuthorBot: true}, false},
		{"other text", chat.Message{ChannelID: "C", Body: "!healthcheck"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeSender{}
			r := New(chat.NewBus(nil), fs, fakeHealth{}, "Maxy", zap.NewNop())
			r.handle(context.Background(), tc.msg)
			if got := fs.count() == 1; got != tc.want {
				t.Fatalf("replied=%v want %v", got, tc.want)
			}
			if tc.want && (fs.posts[0] != "Maxy health summary" || fs.chans[0] != "C") {
				t.Fatalf("reply %q to %q", fs.posts[0], fs.chans[0])
			}
		})
	}
}

func TestHandle_ErrorReply(t *testing.T) {
	fs := &fakeSender{}
	r := New(chat.NewBus(nil), fs, fakeHealth{err: errors.New("db")}, "Maxy", zap.NewNop())
	r.handle(context.Background(), chat.Message{ChannelID: "C", Body: "!health"})
	if fs.count() != 1 || fs.posts[0] != errorReply {
		t.Fatalf("posts = %q", fs.posts)
	}
}

func TestRun_ConsumesStream(t *testing.T) {
	bus := chat.NewBus(nil)
	fs := &fakeSender{}
	r := New(bus, fs, fakeHealth{}, "Maxy", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	bus.Publish(chat.Message{ChannelID: "C", Body: "!status"})
	for fs.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() != 1 {
		t.Fatalf("want one reply, got %d", fs.count())
	}

	cancel()
	<-done
	if bus.Subscribers() != 0 {
		t.Fatal("subscription not released")
	}
}
