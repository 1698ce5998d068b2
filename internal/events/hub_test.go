package events

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	h := NewHub(10)
	sub := h.Subscribe("job1")
	defer h.Unsubscribe(sub)

	h.Publish("job1", EventDownloadStart, nil)
	h.Publish("job1", EventDownloadProgress, map[string]int{"percent": 50})
	h.Publish("job1", EventDone, nil)
	h.Publish("other", EventDone, nil)

	want := []string{EventDownloadStart, EventDownloadProgress, EventDone}
	for _, typ := range want {
		select {
		case ev := <-sub.C:
			if ev.Type != typ {
				t.Fatalf("expected %s, got %s", typ, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	h := NewHub(10)
	first := h.Subscribe("job1")
	second := h.Subscribe("job1")

	if _, ok := <-first.C; ok {
		t.Fatal("replaced subscription should be closed")
	}

	// a stale unsubscribe must not drop the replacement
	h.Unsubscribe(first)
	if h.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Count())
	}

	h.Publish("job1", EventStatus, nil)
	select {
	case ev := <-second.C:
		if ev.Type != EventStatus {
			t.Fatalf("unexpected event %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("replacement did not receive event")
	}
}

func TestSubscriberCapEvictsOldest(t *testing.T) {
	h := NewHub(2)
	a := h.Subscribe("a")
	h.Subscribe("b")
	h.Subscribe("c")

	if h.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", h.Count())
	}
	if _, ok := <-a.C; ok {
		t.Fatal("oldest subscription should be evicted")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("job1")

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("job1", EventDownloadProgress, i)
	}

	if len(sub.C) != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, len(sub.C))
	}
}

func TestDropClosesSubscription(t *testing.T) {
	h := NewHub(10)
	sub := h.Subscribe("job1")

	h.Drop("job1")
	if _, ok := <-sub.C; ok {
		t.Fatal("dropped subscription should be closed")
	}
	if h.Count() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Count())
	}

	// later unsubscribe from the handler is a no-op
	h.Unsubscribe(sub)
}
