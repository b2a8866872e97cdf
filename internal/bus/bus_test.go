package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(NewEvent(KindMessagesChanged, 3))

	select {
	case evt := <-ch:
		if evt.Kind != KindMessagesChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessagesChanged)
		}
		if evt.Payload != 3 {
			t.Errorf("payload = %v, want 3", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	b.Publish(NewEvent(KindMessagesChanged, nil))
	b.Publish(NewEvent(KindStatusChanged, nil))

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	b.Publish(NewEvent(KindRoomChanged, nil))

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	b.Publish(Event{Kind: "chat.one"})
	b.Publish(Event{Kind: "chat.two"})

	evt := <-ch
	if evt.Kind != "chat.one" {
		t.Errorf("got %q, want chat.one", evt.Kind)
	}
}

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(NewEvent(KindError, "x"))
	ch, unsub := b.Subscribe("", 1)
	defer unsub()
	select {
	case <-ch:
		t.Error("nil bus delivered an event")
	default:
	}
}
