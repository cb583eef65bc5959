package realtime

import (
	"context"
	"sync"
	"testing"
)

type frameSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *frameSink) add(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestRegistryReplacesSession(t *testing.T) {
	broker := NewLocalBroker()
	registry := NewRegistry(broker, nil)
	ctx := context.Background()

	var first, second frameSink
	if _, err := registry.Subscribe(ctx, "s1", "u1", first.add); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.Subscribe(ctx, "s1", "u1", second.add); err != nil {
		t.Fatal(err)
	}

	_ = broker.Publish(ctx, "u1", Frame{Kind: FrameNotification})
	if first.len() != 0 || second.len() != 1 {
		t.Fatalf("first=%d second=%d", first.len(), second.len())
	}
	if got := registry.Active("u1"); got != 1 {
		t.Fatalf("active = %d", got)
	}
}

func TestRegistryUnsubscribeIsIdempotent(t *testing.T) {
	broker := NewLocalBroker()
	registry := NewRegistry(broker, nil)
	ctx := context.Background()

	var sink frameSink
	unsubscribe, err := registry.Subscribe(ctx, "s1", "u1", sink.add)
	if err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	unsubscribe()

	_ = broker.Publish(ctx, "u1", Frame{Kind: FrameNotification})
	if sink.len() != 0 {
		t.Fatal("frame delivered after unsubscribe")
	}
	if ok, _ := broker.HasSubscribers(ctx, "u1"); ok {
		t.Fatal("broker still has subscribers")
	}
}

func TestRegistryNotificationFilterAndStopAll(t *testing.T) {
	broker := NewLocalBroker()
	registry := NewRegistry(broker, nil)
	ctx := context.Background()

	var sink frameSink
	if _, err := registry.SubscribeToNotifications(ctx, "u1", sink.add); err != nil {
		t.Fatal(err)
	}
	_ = broker.Publish(ctx, "u1", Frame{Kind: FrameAudio})
	_ = broker.Publish(ctx, "u1", Frame{Kind: FrameNotification})
	_ = broker.Publish(ctx, "u2", Frame{Kind: FrameNotification})
	if sink.len() != 1 {
		t.Fatalf("frames = %d", sink.len())
	}

	registry.StopAll()
	_ = broker.Publish(ctx, "u1", Frame{Kind: FrameNotification})
	if sink.len() != 1 {
		t.Fatal("frame delivered after StopAll")
	}

	unsubscribe, err := registry.Subscribe(ctx, "s2", "u1", sink.add)
	if err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	if registry.Active("u1") != 0 {
		t.Fatal("subscribe after StopAll must not register")
	}
}

func TestSessionIDsAreScopedToRecipient(t *testing.T) {
	broker := NewLocalBroker()
	registry := NewRegistry(broker, nil)
	ctx := context.Background()

	var bob, alice frameSink
	if _, err := registry.Subscribe(ctx, "s-bob", "bob", bob.add); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.Subscribe(ctx, "s-bob", "alice", alice.add); err != nil {
		t.Fatal(err)
	}

	_ = broker.Publish(ctx, "bob", Frame{Kind: FrameNotification})
	if bob.len() != 1 {
		t.Fatalf("bob frames = %d", bob.len())
	}
	if alice.len() != 0 {
		t.Fatalf("alice received bob's frame")
	}
	if registry.Active("bob") != 1 || registry.Active("alice") != 1 {
		t.Fatalf("active bob=%d alice=%d", registry.Active("bob"), registry.Active("alice"))
	}
}

func TestReplacedSessionIsDone(t *testing.T) {
	registry := NewRegistry(NewLocalBroker(), nil)
	ctx := context.Background()

	first, err := registry.Open(ctx, "s1", "u1", func(Frame) {})
	if err != nil {
		t.Fatal(err)
	}
	second, err := registry.Open(ctx, "s1", "u1", func(Frame) {})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced session still open")
	}
	select {
	case <-second.Done():
		t.Fatal("current session closed")
	default:
	}

	second.Close()
	second.Close()
	<-second.Done()
}
