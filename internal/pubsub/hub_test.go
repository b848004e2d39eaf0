package pubsub

import "testing"

func TestPublishDeliversToChannelSubscriber(t *testing.T) {
	h := NewHub(0)
	sub := h.Attach("conn-1", 8)
	if got := sub.Subscribe("news"); got != 1 {
		t.Fatalf("expected subscription count 1, got %d", got)
	}
	delivered := h.Publish("news", []byte("hello"))
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	msg := <-sub.Events()
	if msg.Channel != "news" || string(msg.Payload) != "hello" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestPublishMatchesPatternSubscriber(t *testing.T) {
	h := NewHub(0)
	sub := h.Attach("conn-1", 8)
	sub.PSubscribe("news.*")
	delivered := h.Publish("news.sports", []byte("goal"))
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	msg := <-sub.Events()
	if msg.Pattern != "news.*" || msg.Channel != "news.sports" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestPublishDoesNotDoubleDeliverOnOverlap(t *testing.T) {
	h := NewHub(0)
	sub := h.Attach("conn-1", 8)
	sub.Subscribe("news.sports")
	sub.PSubscribe("news.*")
	delivered := h.Publish("news.sports", []byte("x"))
	if delivered != 1 {
		t.Fatalf("expected exactly 1 delivery despite channel+pattern overlap, got %d", delivered)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(0)
	sub := h.Attach("conn-1", 8)
	sub.Subscribe("news")
	sub.Unsubscribe("news")
	delivered := h.Publish("news", []byte("x"))
	if delivered != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", delivered)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	h := NewHub(0)
	sub := h.Attach("conn-1", 8)
	sub.Subscribe("news")
	sub.Close()
	if h.ChannelCount() != 0 {
		t.Fatalf("expected channel to be cleaned up after Close")
	}
	// Closing twice must not panic.
	sub.Close()
}

func TestGovernorDisconnectsOverBacklogSubscriber(t *testing.T) {
	h := NewHub(10) // tiny soft limit
	sub := h.Attach("conn-1", 8)
	sub.Subscribe("news")
	h.Publish("news", []byte("this payload exceeds the tiny soft limit"))
	// The subscriber should have been disconnected; a second publish finds
	// no recipients.
	delivered := h.Publish("news", []byte("y"))
	if delivered != 0 {
		t.Fatalf("expected subscriber to be disconnected after exceeding soft limit, got %d deliveries", delivered)
	}
}

func TestNumSubAndChannels(t *testing.T) {
	h := NewHub(0)
	a := h.Attach("a", 4)
	b := h.Attach("b", 4)
	a.Subscribe("x")
	b.Subscribe("x")
	b.Subscribe("y")
	counts := h.NumSub("x", "y", "z")
	if counts["x"] != 2 || counts["y"] != 1 || counts["z"] != 0 {
		t.Fatalf("unexpected NumSub result: %#v", counts)
	}
	channels := h.Channels("*")
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %v", channels)
	}
}
