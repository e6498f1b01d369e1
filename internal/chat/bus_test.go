package chat

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus(zap.NewNop())
	a, unA := b.Subscribe()
	c, unC := b.Subscribe()
	defer unA()
	defer unC()

	b.Publish(Message{ID: "1", Body: "hello"})

	for i, ch := range []<-chan Message{a, c} {
		select {
		case m := <-ch:
			if m.ID != "1" {
				t.Fatalf("sub %d: got %+v", i, m)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no message", i)
		}
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := NewBus(zap.NewNop())
	ch, unsub := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("want 1 subscriber, got %d", b.Subscribers())
	}
	unsub()
	unsub()
	if b.Subscribers() != 0 {
		t.Fatalf("want 0 subscribers, got %d", b.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	// publishing after unsubscribe must not panic on the closed channel
	b.Publish(Message{ID: "late"})
}

func TestBus_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBus(zap.NewNop())
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(Message{ID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	b := NewBus(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, unsub := b.Subscribe()
			unsub()
		}()
		go func() {
			defer wg.Done()
			b.Publish(Message{ID: "p"})
		}()
	}
	wg.Wait()
	if b.Subscribers() != 0 {
		t.Fatalf("leaked subscribers: %d", b.Subscribers())
	}
}
