// Package pubsub implements a simple in-process publish-subscribe broker
// used by backends that expose a Watch* stream to multiple callers.
package pubsub

import (
	"sync"

	"github.com/eapache/channels"
)

// ClosableSubscription is the subset of *Subscription exposed to callers
// that only hold an interface reference to it, such as the generic
// Watch* methods on backend interfaces.
type ClosableSubscription interface {
	Close()
}

// Subscription is a handle to an active subscription on a Broker. The
// zero value is not useful; obtain one via Broker.Subscribe.
type Subscription struct {
	broker *Broker
	ch     *channels.InfiniteChannel

	closeOnce sync.Once
}

// Untyped returns the subscription's backing channel as a generic
// receive-only channel of interface{} values.
func (s *Subscription) Untyped() <-chan interface{} {
	return s.ch.Out()
}

// Close unsubscribes from the broker. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.unsubscribe(s)
		s.ch.Close()
	})
}

// Broker is a publish-subscribe message broker. Each subscriber gets its
// own unbounded channel so a slow consumer never blocks Broadcast or
// other subscribers.
type Broker struct {
	sync.RWMutex

	subscribers map[*Subscription]bool

	onSubscribe func(*channels.InfiniteChannel)

	lastValueLock sync.Mutex
	lastValue     interface{}
	broadcastLast bool
}

// NewBroker creates a Broker. If broadcastLast is set, each new
// subscriber immediately receives the most recently broadcast value, if
// any has been broadcast yet.
func NewBroker(broadcastLast bool) *Broker {
	return &Broker{
		subscribers:   make(map[*Subscription]bool),
		broadcastLast: broadcastLast,
	}
}

// NewBrokerEx creates a Broker that invokes onSubscribe for every new
// subscription's channel before returning it, letting the caller seed
// the channel with whatever initial state a fresh subscriber should
// observe (for example, the current set of known nodes).
func NewBrokerEx(onSubscribe func(*channels.InfiniteChannel)) *Broker {
	return &Broker{
		subscribers: make(map[*Subscription]bool),
		onSubscribe: onSubscribe,
	}
}

// Subscribe creates a new subscription. The returned channel receives
// every value passed to Broadcast after this call returns (plus,
// depending on how the Broker was constructed, replayed or seeded
// state).
func (b *Broker) Subscribe() (<-chan interface{}, *Subscription) {
	sub := &Subscription{
		broker: b,
		ch:     channels.NewInfiniteChannel(),
	}

	b.Lock()
	b.subscribers[sub] = true
	b.Unlock()

	if b.onSubscribe != nil {
		b.onSubscribe(sub.ch)
	}

	if b.broadcastLast {
		b.lastValueLock.Lock()
		v := b.lastValue
		haveValue := v != nil
		b.lastValueLock.Unlock()

		if haveValue {
			sub.ch.In() <- v
		}
	}

	return sub.ch.Out(), sub
}

// Broadcast delivers v to every current subscriber's channel.
func (b *Broker) Broadcast(v interface{}) {
	if b.broadcastLast {
		b.lastValueLock.Lock()
		b.lastValue = v
		b.lastValueLock.Unlock()
	}

	b.RLock()
	defer b.RUnlock()
	for sub := range b.subscribers {
		sub.ch.In() <- v
	}
}

// NumSubscribers returns the current subscriber count.
func (b *Broker) NumSubscribers() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.subscribers)
}

// Close closes every current subscription.
func (b *Broker) Close() {
	b.RLock()
	subs := make([]*Subscription, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.Lock()
	defer b.Unlock()
	delete(b.subscribers, sub)
}
