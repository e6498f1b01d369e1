package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	h := New(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnect))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Broadcast(Event{Type: EventCheckCompleted, Payload: map[string]bool{"up": true}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type    string          `json:"type"`
		Payload map[string]bool `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventCheckCompleted || !got.Payload["up"] {
		t.Fatalf("unexpected event %s", data)
	}
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	h := New(nil, zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(Event{Type: EventCheckCompleted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked")
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	h := New([]string{"https://dash.example.com"}, zap.NewNop())
	cases := map[string]bool{
		"":                         true,
		"https://dash.example.com": true,
		"http://localhost:5173":    true,
		"https://evil.example.com": false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest("GET", "/api/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := h.upgrader.CheckOrigin(r); got != want {
			t.Errorf("origin %q: got %v want %v", origin, got, want)
		}
	}
}

func TestHub_ConnectAfterShutdownDoesNotHang(t *testing.T) {
	h := New(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(ran)
	}()
	cancel()
	<-ran

	handled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleConnect(w, r)
		close(handled)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnect blocked after the hub stopped")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("want the connection closed")
	}
	if h.Clients() != 0 {
		t.Fatalf("clients=%d", h.Clients())
	}
}
