package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Message, 1)

	sub, err := bus.Subscribe(ctx, "parlance.command.started", func(msg *Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	err = bus.Publish(ctx, "parlance.command.started", []byte(`{"id":"exec-1"}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Data) != `{"id":"exec-1"}` {
			t.Errorf("unexpected data: %q", string(msg.Data))
		}
		if msg.Subject != "parlance.command.started" {
			t.Errorf("unexpected subject: %q", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestMemoryBus_Wildcard(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32

	sub, err := bus.Subscribe(ctx, "parlance.command.*", func(msg *Message) {
		received.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish(ctx, "parlance.command.started", []byte("1"))
	bus.Publish(ctx, "parlance.command.completed", []byte("2"))
	bus.Publish(ctx, "parlance.flags.changed", []byte("3")) // no match

	time.Sleep(100 * time.Millisecond)

	if received.Load() != 2 {
		t.Errorf("Expected 2 messages, got %d", received.Load())
	}
}

func TestMemoryBus_WildcardGreaterThan(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32

	sub, err := bus.Subscribe(ctx, "parlance.>", func(msg *Message) {
		received.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish(ctx, "parlance.command.step", []byte("1"))
	bus.Publish(ctx, "parlance.command.exec.123.events", []byte("2"))
	bus.Publish(ctx, "other.thing", []byte("3")) // no match

	time.Sleep(100 * time.Millisecond)

	if received.Load() != 2 {
		t.Errorf("Expected 2 messages, got %d", received.Load())
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var count atomic.Int32

	for i := 0; i < 3; i++ {
		sub, _ := bus.Subscribe(ctx, "fanout", func(msg *Message) {
			count.Add(1)
		})
		defer sub.Unsubscribe()
	}

	bus.Publish(ctx, "fanout", []byte("broadcast"))
	time.Sleep(100 * time.Millisecond)

	if count.Load() != 3 {
		t.Errorf("Expected 3 subscribers to receive message, got %d", count.Load())
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32

	sub, _ := bus.Subscribe(ctx, "test", func(msg *Message) {
		received.Add(1)
	})

	bus.Publish(ctx, "test", []byte("1"))
	time.Sleep(50 * time.Millisecond)

	sub.Unsubscribe()

	bus.Publish(ctx, "test", []byte("2"))
	time.Sleep(50 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 message after unsubscribe, got %d", received.Load())
	}
}

func TestMemoryBus_OrderedDeliveryPerSubscription(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	got := make(chan byte, 10)

	sub, err := bus.Subscribe(ctx, "ordered", func(msg *Message) {
		got <- msg.Data[0]
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	for i := byte(0); i < 5; i++ {
		bus.Publish(ctx, "ordered", []byte{i})
	}

	for i := byte(0); i < 5; i++ {
		select {
		case b := <-got:
			if b != i {
				t.Fatalf("message %d arrived out of order (got %d)", i, b)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"foo", "foo", true},
		{"foo", "bar", false},
		{"foo.bar", "foo.bar", true},
		{"foo.bar", "foo.baz", false},
		{"foo.*", "foo.bar", true},
		{"foo.*", "foo.bar.baz", false},
		{"foo.>", "foo.bar", true},
		{"foo.>", "foo.bar.baz", true},
		{"*.bar", "foo.bar", true},
		{"*.bar", "baz.bar", true},
		{"*.bar", "foo.baz", false},
		{"parlance.command.*", "parlance.command.step", true},
		{"parlance.command.*", "parlance.command", false},
		{"parlance.>", "parlance.command.exec.xyz", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.subject, func(t *testing.T) {
			got := matchSubject(tt.pattern, tt.subject)
			if got != tt.want {
				t.Errorf("matchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
			}
		})
	}
}

func TestMemoryBus_ClosedOperations(t *testing.T) {
	bus := NewMemoryBus()
	bus.Close()

	ctx := context.Background()

	if err := bus.Publish(ctx, "test", []byte("data")); err != ErrClosed {
		t.Errorf("Expected ErrClosed on publish, got %v", err)
	}

	if _, err := bus.Subscribe(ctx, "test", nil); err != ErrClosed {
		t.Errorf("Expected ErrClosed on subscribe, got %v", err)
	}

	if err := bus.Close(); err != ErrClosed {
		t.Errorf("Expected ErrClosed on double close, got %v", err)
	}
}

func TestNewSelectsDriver(t *testing.T) {
	b, err := New(Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	b.Close()

	b, err = New(Config{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	b.Close()

	if _, err := New(Config{Driver: "carrier-pigeon"}); err == nil {
		t.Error("unknown driver must fail")
	}
}
