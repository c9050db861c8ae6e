package refstore

import (
	"sync"

	"github.com/google/uuid"
)

// notification is one (name, namespace) change already resolved against
// the subscriber set at publish time, so the per-key dispatch goroutine
// never needs the Broker's lock.
type notification struct {
	name, namespace string
	old             *string
	newFingerprint  string
	matched         []subscription
}

type subscription struct {
	id        uuid.UUID
	name      string
	namespace string
	callback  Callback
}

func (s subscription) matches(name, namespace string) bool {
	return (s.name == Wildcard || s.name == name) && (s.namespace == Wildcard || s.namespace == namespace)
}

// Broker is the subscription fan-out every refstore.Store adapter
// embeds, grounded on the teacher's pkg/events.Broker: a subscriber set
// guarded by a mutex, and dispatch that never runs a callback while
// holding that mutex. Unlike events.Broker's single global channel, a
// Broker here runs one serial queue per (name, namespace) key so
// callbacks are FIFO per key (spec.md §5) while different keys can
// dispatch concurrently.
type Broker struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]subscription
	queues map[string]chan notification
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]subscription),
		queues: make(map[string]chan notification),
	}
}

// Subscribe registers callback for changes to cells matching name and
// namespace (each may be Wildcard).
func (b *Broker) Subscribe(name, namespace string, callback Callback) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.subs[id] = subscription{id: id, name: name, namespace: namespace, callback: callback}
	return id
}

// Count returns the number of active subscriptions, for metrics
// collection.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Unsubscribe removes a subscription, returning true iff it existed.
func (b *Broker) Unsubscribe(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}

// Publish notifies every subscription matching (name, namespace).
// Matching subscribers are resolved under the lock; the callbacks
// themselves run later, outside it, on the key's own serial queue.
func (b *Broker) Publish(name, namespace string, old *string, newFingerprint string) {
	b.mu.Lock()
	var matched []subscription
	for _, s := range b.subs {
		if s.matches(name, namespace) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		b.mu.Unlock()
		return
	}
	q := b.queueForLocked(name, namespace)
	b.mu.Unlock()

	q <- notification{name: name, namespace: namespace, old: old, newFingerprint: newFingerprint, matched: matched}
}

// queueForLocked returns the serial dispatch channel for (name,
// namespace), creating it (and its draining goroutine) on first use.
// Callers must hold b.mu.
func (b *Broker) queueForLocked(name, namespace string) chan notification {
	key := name + "\x00" + namespace
	if q, ok := b.queues[key]; ok {
		return q
	}
	q := make(chan notification, 64)
	b.queues[key] = q
	go dispatchLoop(q)
	return q
}

func dispatchLoop(q chan notification) {
	for n := range q {
		for _, s := range n.matched {
			s.callback(n.name, n.namespace, n.old, n.newFingerprint)
		}
	}
}
