package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	rings, unsubRings := b.Subscribe(4, RingDropped)
	defer unsubRings()

	b.Publish(Event{Type: ScheduleSaved})
	b.Publish(Event{Type: RingDropped, Data: RingData{Kind: "play_bell", Lag: 2 * time.Minute}})

	if got := (<-all).Type; got != ScheduleSaved {
		t.Fatalf("first event = %q", got)
	}
	if got := (<-all).Type; got != RingDropped {
		t.Fatalf("second event = %q", got)
	}
	e := <-rings
	if e.Type != RingDropped || e.Time.IsZero() {
		t.Fatalf("filtered event = %+v", e)
	}
	if d, ok := e.Data.(RingData); !ok || d.Kind != "play_bell" {
		t.Fatalf("data = %#v", e.Data)
	}
	select {
	case extra := <-rings:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: RingFired})
	b.Publish(Event{Type: RingFired})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	unsub()
	unsub()
	b.Publish(Event{Type: RingFired})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped after unsubscribe = %d, want 1", got)
	}
}
