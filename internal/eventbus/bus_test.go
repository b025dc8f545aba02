package eventbus

import (
	"testing"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "reminder.created", Data: 1})
	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != "reminder.created" || ev.Time.IsZero() {
			t.Fatalf("got %+v", ev)
		}
	}
}

func TestSubscribePrefixFilters(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.SubscribePrefix("reminder.", 4)
	defer unsub()

	b.Publish(Event{Type: "config.reloaded"})
	b.Publish(Event{Type: "reminder.fired"})
	if ev := <-ch; ev.Type != "reminder.fired" {
		t.Fatalf("got %q", ev.Type)
	}
	if len(ch) != 0 {
		t.Fatal("unexpected extra event")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
}
