// Package eventbus implements the in-process typed pub/sub described in
// spec.md §4.6: bounded per-subscriber channels, non-blocking publish, and
// drop-oldest-with-lag-count semantics on a full buffer.
package eventbus

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Topic identifies one of the fixed publish channels.
type Topic string

const (
	TopicJobStatus     Topic = "job.status"
	TopicJobStats      Topic = "job.stats"
	TopicJobLog        Topic = "job.log"
	TopicSystemMetrics Topic = "system.metrics"
)

// DefaultBufferSize is the per-subscriber channel capacity (spec §4.6).
const DefaultBufferSize = 256

// Event is one published message. LagCount is non-zero only on the first
// delivery after a drop, letting a slow consumer detect loss.
type Event struct {
	Topic     Topic
	Payload   any
	LagCount  int
}

type subscriber struct {
	id       string
	topic    Topic
	ch       chan Event
	mu       sync.Mutex
	lagCount int
}

// Bus is a typed, in-process publish/subscribe broker. Zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic]map[string]*subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[Topic]map[string]*subscriber),
	}
}

// Subscription is the handle returned by Subscribe. Events arrives in
// publish order for this subscriber; Close unsubscribes and is idempotent.
type Subscription struct {
	bus  *Bus
	sub  *subscriber
	once sync.Once
}

// Events returns the channel this subscription receives on.
func (s *Subscription) Events() <-chan Event {
	return s.sub.ch
}

// Close unsubscribes. Safe to call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.sub.topic, s.sub.id)
	})
}

// Subscribe registers a new subscriber on topic with the default buffer
// size.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	return b.SubscribeBuffered(topic, DefaultBufferSize)
}

// SubscribeBuffered registers a new subscriber on topic with a caller-chosen
// buffer size (tests use small buffers to exercise drop behavior quickly).
func (b *Bus) SubscribeBuffered(topic Topic, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	sub := &subscriber{
		id:    ulid.Make().String(),
		topic: topic,
		ch:    make(chan Event, bufferSize),
	}

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[string]*subscriber)
	}
	b.subscribers[topic][sub.id] = sub
	b.mu.Unlock()

	return &Subscription{bus: b, sub: sub}
}

func (b *Bus) unsubscribe(topic Topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	if subs == nil {
		return
	}
	if sub, ok := subs[id]; ok {
		close(sub.ch)
		delete(subs, id)
	}
}

// Publish delivers payload to every current subscriber of topic. It never
// blocks: if a subscriber's buffer is full, the oldest queued item is
// dropped to make room, and the subscriber's lag counter is incremented.
// The next event successfully enqueued for that subscriber carries the
// accumulated lag_count.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[topic]))
	for _, sub := range b.subscribers[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, payload)
	}
}

// deliver enqueues payload onto sub's channel, dropping the oldest queued
// item (not the new one) when full, per spec §4.6. Holding sub.mu across
// both the drop and the re-send makes this race-free against concurrent
// publishes to the same subscriber: the reader can only ever add room, and
// the freed slot from our own drop cannot be reclaimed by anyone else.
func deliver(sub *subscriber, payload any) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	event := Event{Topic: sub.topic, Payload: payload}

	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.lagCount++
		event.LagCount = sub.lagCount
	default:
	}
	sub.ch <- event
}

// SubscriberCount returns the number of live subscribers on topic, used by
// callers that want to skip expensive work (e.g. log forwarding) when
// nobody is listening.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
