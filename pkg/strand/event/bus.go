package event

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscription channel buffer.
const DefaultBufferSize = 256

// Bus fans events out to subscribers. Publish is non-blocking: a
// subscriber whose buffer is full misses the event rather than stalling
// the workflow that produced it.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	byType        map[Type]map[string]*Subscription
	wildcards     map[string]*Subscription

	bufferSize int
	onDrop     func(evt Event, subscriberID string)

	nextID atomic.Int64
	closed atomic.Bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscription channel buffer.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithDropHandler installs a callback invoked when a full subscriber
// buffer forces an event to be dropped.
func WithDropHandler(fn func(evt Event, subscriberID string)) BusOption {
	return func(b *Bus) {
		b.onDrop = fn
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscriptions: make(map[string]*Subscription),
		byType:        make(map[Type]map[string]*Subscription),
		wildcards:     make(map[string]*Subscription),
		bufferSize:    DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's view of the stream. Consume events
// from Events; the channel closes on Unsubscribe or bus Close.
type Subscription struct {
	id     string
	types  []Type
	events chan Event
	bus    *Bus
	once   sync.Once
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.remove(s)
}

// Subscribe creates a subscription for specific event types.
// With no types, the subscription receives every event.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:     strconv.FormatInt(b.nextID.Add(1), 10),
		types:  types,
		events: make(chan Event, b.bufferSize),
		bus:    b,
	}

	b.subscriptions[sub.id] = sub
	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*Subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	return sub
}

// Publish delivers an event to all matching subscribers without
// blocking. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(evt Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver := func(sub *Subscription) {
		select {
		case sub.events <- evt:
		default:
			if b.onDrop != nil {
				b.onDrop(evt, sub.id)
			}
		}
	}

	for _, sub := range b.byType[evt.Type] {
		deliver(sub)
	}
	for _, sub := range b.wildcards {
		deliver(sub)
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		b.remove(sub)
	}
}

// remove must be called with b.mu held.
func (b *Bus) remove(sub *Subscription) {
	if _, ok := b.subscriptions[sub.id]; !ok {
		return
	}
	delete(b.subscriptions, sub.id)
	delete(b.wildcards, sub.id)
	for _, t := range sub.types {
		delete(b.byType[t], sub.id)
	}
	sub.once.Do(func() { close(sub.events) })
}
