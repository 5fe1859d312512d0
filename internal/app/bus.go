package app

import (
	"sync"

	"pvp-quiz-service/internal/domain"
)

// Topic names partition the bus per room and per channel kind.
func LobbyTopic(roomID string) string { return "lobby:" + roomID }
func GameTopic(roomID string) string  { return "game:" + roomID }

// LeaderboardTopic is the single global feed for XP leaderboard updates.
const LeaderboardTopic = "leaderboard"

const defaultQueueSize = 32

// Subscriber is one connection's view of a topic. Events arrive on a bounded
// channel in publish order; the channel is closed on unsubscribe or drop.
type Subscriber struct {
	ch     chan domain.Event
	onDrop func()
	closed bool
}

// Events returns the ordered event stream. The channel closes when the
// subscription ends.
func (s *Subscriber) Events() <-chan domain.Event { return s.ch }

type busTopic struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Bus is a per-topic publish/subscribe fan-out. Each topic has its own lock,
// so publishes to different rooms never contend. Within one topic events are
// delivered to every subscriber in publish order. A subscriber that cannot
// keep up with its queue is dropped (its onDrop hook fires) rather than
// stalling the publisher or losing events for everyone else.
type Bus struct {
	queueSize int

	mu     sync.RWMutex
	topics map[string]*busTopic
}

func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		topics:    make(map[string]*busTopic),
	}
}

// Subscribe registers a new subscriber on a topic. onDrop is invoked (on a
// fresh goroutine) if the subscriber's queue overflows; it may be nil.
func (b *Bus) Subscribe(topic string, onDrop func()) *Subscriber {
	sub := &Subscriber{
		ch:     make(chan domain.Event, b.queueSize),
		onDrop: onDrop,
	}

	b.mu.Lock()
	t, ok := b.topics[topic]
	if !ok {
		t = &busTopic{subs: make(map[*Subscriber]struct{})}
		b.topics[topic] = t
	}
	b.mu.Unlock()

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent.
func (b *Bus) Unsubscribe(topic string, sub *Subscriber) {
	b.mu.RLock()
	t, ok := b.topics[topic]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	if _, live := t.subs[sub]; live && !sub.closed {
		delete(t.subs, sub)
		sub.closed = true
		close(sub.ch)
	}
	t.mu.Unlock()
}

// Publish delivers events to every current subscriber of the topic, in order.
// Slow subscribers are removed and notified via onDrop; publication never
// blocks on them.
func (b *Bus) Publish(topic string, events ...domain.Event) {
	b.mu.RLock()
	t, ok := b.topics[topic]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ev := range events {
		for sub := range t.subs {
			select {
			case sub.ch <- ev:
			default:
				delete(t.subs, sub)
				sub.closed = true
				close(sub.ch)
				if sub.onDrop != nil {
					go sub.onDrop()
				}
			}
		}
	}
}

// CloseTopic closes every subscriber of a topic and forgets it. Used when a
// room is torn down.
func (b *Bus) CloseTopic(topic string) {
	b.mu.Lock()
	t, ok := b.topics[topic]
	delete(b.topics, topic)
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	for sub := range t.subs {
		delete(t.subs, sub)
		sub.closed = true
		close(sub.ch)
	}
	t.mu.Unlock()
}
