package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
)

// fakeRelay acks every frame; channel "denied" is rejected and channel
// "silent" is never acked.
type fakeRelay struct {
	mu       sync.Mutex
	frames   []frame
	authHdr  string
	upgrader websocket.Upgrader
}

func (r *fakeRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.authHdr = req.Header.Get("Authorization")
	r.mu.Unlock()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	msg, _ := json.Marshal(chat.Message{ID: "m1", ChannelID: "C", AuthorID: "bot", Body: "Pong!"})
	_ = conn.WriteJSON(frame{Op: opMessage, D: msg})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		r.mu.Lock()
		r.frames = append(r.frames, f)
		r.mu.Unlock()

		var p channelPayload
		_ = json.Unmarshal(f.D, &p)
		switch p.ChannelID {
		case "silent":
			continue
		case "denied":
			_ = conn.WriteJSON(frame{Op: opAck, ID: f.ID, Error: "missing permission"})
		default:
			_ = conn.WriteJSON(frame{Op: opAck, ID: f.ID})
		}
	}
}

func startClient(t *testing.T, relay *fakeRelay, timeout time.Duration) (*Client, *chat.Bus, <-chan chat.Message) {
	t.Helper()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)

	bus := chat.NewBus(zap.NewNop())
	msgs, unsub := bus.Subscribe()
	t.Cleanup(unsub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Config{URL: url, Token: "tok", SendTimeout: timeout, MinBackoff: 10 * time.Millisecond}, bus, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c, bus, msgs
}

func TestClient_PublishesInboundMessages(t *testing.T) {
	relay := &fakeRelay{}
	_, _, msgs := startClient(t, relay, time.Second)

	select {
	case m := <-msgs:
		if m.AuthorID != "bot" || m.Body != "Pong!" {
			t.Fatalf("unexpected message %+v", m)
		}
		if m.Timestamp.IsZero() {
			t.Fatalf("timestamp should be filled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message published")
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if relay.authHdr != "Bot tok" {
		t.Fatalf("auth header = %q", relay.authHdr)
	}
}

func TestClient_SendAcked(t *testing.T) {
	relay := &fakeRelay{}
	c, _, _ := startClient(t, relay, time.Second)

	if err := c.SendToChannel(context.Background(), "C", ".ping"); err != nil {
		t.Fatalf("SendToChannel: %v", err)
	}
	if err := c.SendDirectMessage(context.Background(), "owner", "hi"); err != nil {
		t.Fatalf("SendDirectMessage: %v", err)
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if len(relay.frames) != 2 {
		t.Fatalf("want 2 frames, got %d", len(relay.frames))
	}
	if relay.frames[0].Op != opSend || relay.frames[1].Op != opDM {
		t.Fatalf("ops = %s, %s", relay.frames[0].Op, relay.frames[1].Op)
	}
	if relay.frames[0].ID == "" || relay.frames[0].ID == relay.frames[1].ID {
		t.Fatalf("frame ids must be unique and non-empty")
	}
}

func TestClient_SendRejected(t *testing.T) {
	c, _, _ := startClient(t, &fakeRelay{}, time.Second)

	err := c.SendToChannel(context.Background(), "denied", ".ping")
	if err == nil || !strings.Contains(err.Error(), "missing permission") {
		t.Fatalf("want rejection error, got %v", err)
	}
}

func TestClient_SendAckTimeout(t *testing.T) {
	c, _, _ := startClient(t, &fakeRelay{}, 50*time.Millisecond)

	err := c.SendToChannel(context.Background(), "silent", ".ping")
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("want ErrAckTimeout, got %v", err)
	}
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("pending acks leaked: %d", n)
	}
}

func TestClient_SendWithoutConnection(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, nil, zap.NewNop())
	if err := c.SendToChannel(context.Background(), "C", "x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}
