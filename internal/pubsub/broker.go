// Package pubsub provides an in-memory topic broker for realtime
// conversation events.
package pubsub

import (
	"context"
	"sync"
)

const bufferSize = 64

// Broker is a topic-keyed in-memory publish/subscribe hub. Topics are
// conversation IDs; payloads are typed via T.
type Broker[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event[T]]struct{}
	done   chan struct{}
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		topics: make(map[string]map[chan Event[T]]struct{}),
		done:   make(chan struct{}),
	}
}

// Shutdown closes every subscriber channel and rejects further publishes.
// Safe to call more than once.
func (b *Broker[T]) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
}

// Subscribe registers a subscriber on a topic. The returned channel closes
// when ctx is done or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context, topic string) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], bufferSize)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan Event[T]]struct{})
	}
	b.topics[topic][sub] = struct{}{}

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		if subs, ok := b.topics[topic]; ok {
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
		}
	}()

	return sub
}

// SubscriberCount returns the number of active subscribers on a topic.
func (b *Broker[T]) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Publish delivers an event to every subscriber of a topic. Delivery is
// non-blocking: a subscriber with a full buffer misses the event.
func (b *Broker[T]) Publish(topic string, t EventType, payload T) {
	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	subscribers := make([]chan Event[T], 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subscribers = append(subscribers, sub)
	}
	b.mu.RUnlock()

	event := Event[T]{Type: t, Payload: payload}

	for _, sub := range subscribers {
		select {
		case sub <- event:
		default:
			// Buffer full: skip this subscriber rather than block the turn.
		}
	}
}
