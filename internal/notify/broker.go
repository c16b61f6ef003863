package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 64

// Broker fans events out to subscribers. Delivery never blocks the publisher:
// events for a subscriber whose buffer is full are dropped and counted.
type Broker struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]*subscription
	dropped atomic.Uint64
}

type subscription struct {
	ch     chan Event
	filter func(Event) bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscription)}
}

// Subscribe registers a subscriber. A nil filter receives every event; a
// non-positive buffer uses the default. The returned cancel func closes the
// channel and is safe to call more than once.
func (b *Broker) Subscribe(buffer int, filter func(Event) bool) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscription{ch: make(chan Event, buffer), filter: filter}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers events to every matching subscriber.
func (b *Broker) Publish(ctx context.Context, events ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		for _, sub := range b.subs {
			if sub.filter != nil && !sub.filter(event) {
				continue
			}
			select {
			case sub.ch <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// Dropped reports how many deliveries were discarded because a subscriber was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
