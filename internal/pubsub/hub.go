// Package pubsub implements CoolCache's channel fan-out: SUBSCRIBE,
// PSUBSCRIBE and PUBLISH, with an OutputGovernor soft-limit guarding each
// subscriber's delivery channel. Delivery is fire-and-forget: PUBLISH
// only reaches subscribers already attached when it runs, and nothing is
// replayed on reconnect.
package pubsub

import (
	"sync"

	"coolcache/internal/keyspace"
)

// Message is one published payload bound for delivery to a subscriber,
// carrying enough shape to render either a channel or pattern message.
type Message struct {
	Channel string
	Pattern string // empty unless delivered via a PSUBSCRIBE match
	Payload []byte
}

// Subscriber is a single connection's view of its subscriptions, delivered
// asynchronously so PUBLISH never blocks on a slow reader beyond the
// governor's soft limit.
type Subscriber struct {
	id  string
	hub *Hub

	mu       sync.Mutex
	channels map[string]struct{}
	patterns map[string]struct{}
	ch       chan Message
	closed   bool
}

// NewHub constructs an empty pub/sub registry with the given soft output
// limit in bytes (0 selects DefaultSoftLimitBytes).
func NewHub(softLimitBytes float64) *Hub {
	return &Hub{
		channels: make(map[string]map[string]*Subscriber),
		patterns: make(map[string]map[string]*Subscriber),
		subs:     make(map[string]*Subscriber),
		governor: NewOutputGovernor(softLimitBytes, nil),
	}
}

// Hub owns the channel/pattern -> subscriber indices and the shared
// OutputGovernor. One Hub is shared across every connection.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[string]*Subscriber // channel -> subscriberID -> Subscriber
	patterns map[string]map[string]*Subscriber // pattern -> subscriberID -> Subscriber
	subs     map[string]*Subscriber

	governor *OutputGovernor
}

// Attach registers a new subscriber identity with buffer capacity buf for
// its delivery channel. The caller is responsible for draining Events()
// until Close.
func (h *Hub) Attach(id string, buf int) *Subscriber {
	if buf <= 0 {
		buf = 128
	}
	s := &Subscriber{
		id:       id,
		hub:      h,
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
		ch:       make(chan Message, buf),
	}
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return s
}

// Events exposes the subscriber's ordered delivery channel.
func (s *Subscriber) Events() <-chan Message { return s.ch }

// Subscribe adds channel to s's channel subscriptions, returning the total
// number of channels+patterns s is now subscribed to (the RESP reply shape
// SUBSCRIBE uses).
func (s *Subscriber) Subscribe(channel string) int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.channels[channel] == nil {
		s.hub.channels[channel] = make(map[string]*Subscriber)
	}
	s.hub.channels[channel][s.id] = s
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	count := len(s.channels) + len(s.patterns)
	s.mu.Unlock()
	return count
}

// Unsubscribe removes channel from s's subscriptions, returning the
// remaining total.
func (s *Subscriber) Unsubscribe(channel string) int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs, ok := s.hub.channels[channel]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.hub.channels, channel)
		}
	}
	s.mu.Lock()
	delete(s.channels, channel)
	count := len(s.channels) + len(s.patterns)
	s.mu.Unlock()
	return count
}

// PSubscribe adds pattern to s's pattern subscriptions, returning the total.
func (s *Subscriber) PSubscribe(pattern string) int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.patterns[pattern] == nil {
		s.hub.patterns[pattern] = make(map[string]*Subscriber)
	}
	s.hub.patterns[pattern][s.id] = s
	s.mu.Lock()
	s.patterns[pattern] = struct{}{}
	count := len(s.channels) + len(s.patterns)
	s.mu.Unlock()
	return count
}

// PUnsubscribe removes pattern from s's subscriptions, returning the
// remaining total.
func (s *Subscriber) PUnsubscribe(pattern string) int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs, ok := s.hub.patterns[pattern]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.hub.patterns, pattern)
		}
	}
	s.mu.Lock()
	delete(s.patterns, pattern)
	count := len(s.channels) + len(s.patterns)
	s.mu.Unlock()
	return count
}

// SubscriptionCount reports how many channels+patterns s currently holds.
func (s *Subscriber) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels) + len(s.patterns)
}

// Channels returns the channel names s is currently subscribed to, the
// shape a bare UNSUBSCRIBE (no arguments) needs to unsubscribe from all.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	return out
}

// Patterns returns the patterns s is currently subscribed to, the
// bare-PUNSUBSCRIBE counterpart to Channels.
func (s *Subscriber) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.patterns))
	for p := range s.patterns {
		out = append(out, p)
	}
	return out
}

// Close detaches s from every channel and pattern and closes its delivery
// channel; safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	chans := make([]string, 0, len(s.channels))
	for c := range s.channels {
		chans = append(chans, c)
	}
	pats := make([]string, 0, len(s.patterns))
	for p := range s.patterns {
		pats = append(pats, p)
	}
	s.mu.Unlock()

	s.hub.mu.Lock()
	for _, c := range chans {
		if subs, ok := s.hub.channels[c]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.hub.channels, c)
			}
		}
	}
	for _, p := range pats {
		if subs, ok := s.hub.patterns[p]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.hub.patterns, p)
			}
		}
	}
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()

	s.hub.governor.Forget(s.id)
	close(s.ch)
}

// Publish delivers payload to every subscriber of channel plus every
// subscriber whose pattern matches it, in a single pass so per-channel and
// per-pattern recipients observe the same publish in the same call.
// Subscribers whose queued backlog exceeds the governor's soft limit are
// disconnected rather than blocked, so one slow reader cannot stall
// PUBLISH for every other client. Returns the number of subscribers the
// message was actually queued for.
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.Lock()
	recipients := make(map[string]*Subscriber)
	for id, sub := range h.channels[channel] {
		recipients[id] = sub
	}
	matchedPatterns := make(map[string]string) // subscriberID -> matching pattern
	for pattern, subs := range h.patterns {
		if !keyspace.MatchGlob(pattern, channel) {
			continue
		}
		for id, sub := range subs {
			if _, already := recipients[id]; !already {
				recipients[id] = sub
				matchedPatterns[id] = pattern
			}
		}
	}
	h.mu.Unlock()

	delivered := 0
	for id, sub := range recipients {
		msg := Message{Channel: channel, Payload: payload, Pattern: matchedPatterns[id]}
		if !h.governor.Charge(id, len(payload)) {
			sub.Close()
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			// Buffer is full despite passing the soft-limit check: the
			// reader is stalled. Disconnect rather than block PUBLISH.
			sub.Close()
		}
	}
	return delivered
}

// Drained must be called by the connection loop after writing a message to
// the wire, so the governor's backlog tracking reflects actual delivery.
func (h *Hub) Drained(subscriberID string, payloadBytes int) {
	h.governor.Release(subscriberID, payloadBytes)
}

// ChannelCount returns the number of distinct channels with at least one
// subscriber, the shape PUBSUB CHANNELS/NUMSUB need.
func (h *Hub) ChannelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Channels returns channel names with at least one subscriber, optionally
// filtered by a glob pattern (empty pattern matches everything).
func (h *Hub) Channels(pattern string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for c := range h.channels {
		if pattern == "" || keyspace.MatchGlob(pattern, c) {
			out = append(out, c)
		}
	}
	return out
}

// NumSub returns the subscriber count for each requested channel.
func (h *Hub) NumSub(channels ...string) map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(channels))
	for _, c := range channels {
		out[c] = len(h.channels[c])
	}
	return out
}
