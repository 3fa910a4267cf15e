// Package registry implements the broker's process-wide subscription index:
// a forward mapping from (topic, session) to subscribed connections, and a
// reverse mapping for O(1) cleanup on disconnect.
//
// The registry is the single shared mutable structure in the broker
// (grounded on the teacher's websocket.Hub, which protects its clients map
// the same way). A single sync.RWMutex guards both indices. Writers
// (Subscribe/Unsubscribe/Remove) hold the exclusive lock only long enough
// to mutate the maps. Subscribers takes the shared lock, clones the
// matching set, and releases the lock before returning — callers must
// never hold a registry lock across a mailbox enqueue, since enqueue can
// block or fail on a full mailbox.
package registry

import "sync"

// Key identifies a (topic, session) pair — the forward index's key type.
type Key struct {
	Topic   string
	Session string
}

// Subscriber is the minimal surface the registry needs from a connection
// actor: an identity to key the reverse index on, and a stable reference
// returned in Subscribers snapshots. The broker package's *Connection
// satisfies this.
type Subscriber interface {
	ID() uint64
}

// Registry holds the forward and reverse subscription indices.
type Registry struct {
	mu      sync.RWMutex
	forward map[Key]map[uint64]Subscriber
	reverse map[uint64]map[Key]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		forward: make(map[Key]map[uint64]Subscriber),
		reverse: make(map[uint64]map[Key]struct{}),
	}
}

// Subscribe adds c to (topic, session). Idempotent: subscribing twice has
// no additional effect. Preserves R1/R2.
func (r *Registry) Subscribe(c Subscriber, topic, session string) {
	key := Key{Topic: topic, Session: session}
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.forward[key]
	if !ok {
		subs = make(map[uint64]Subscriber)
		r.forward[key] = subs
	}
	subs[id] = c

	pairs, ok := r.reverse[id]
	if !ok {
		pairs = make(map[Key]struct{})
		r.reverse[id] = pairs
	}
	pairs[key] = struct{}{}
}

// Unsubscribe removes c from (topic, session). Idempotent; prunes the
// forward entry when it becomes empty (R2).
func (r *Registry) Unsubscribe(c Subscriber, topic, session string) {
	key := Key{Topic: topic, Session: session}
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.unlockedUnsubscribe(id, key)
}

func (r *Registry) unlockedUnsubscribe(id uint64, key Key) {
	if subs, ok := r.forward[key]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.forward, key)
		}
	}
	if pairs, ok := r.reverse[id]; ok {
		delete(pairs, key)
		if len(pairs) == 0 {
			delete(r.reverse, id)
		}
	}
}

// Remove unsubscribes c from every (topic, session) pair it currently
// holds. Called once, on transition to GONE.
func (r *Registry) Remove(c Subscriber) {
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	pairs, ok := r.reverse[id]
	if !ok {
		return
	}
	keys := make([]Key, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	for _, k := range keys {
		r.unlockedUnsubscribe(id, k)
	}
}

// Subscribers returns a snapshot of connections currently subscribed to
// (topic, session). The lock is released before this function returns, so
// callers may safely enqueue to each subscriber's mailbox without holding
// any registry lock across that suspension point.
func (r *Registry) Subscribers(topic, session string) []Subscriber {
	key := Key{Topic: topic, Session: session}

	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.forward[key]
	if !ok {
		return nil
	}
	snapshot := make([]Subscriber, 0, len(subs))
	for _, c := range subs {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// IsSubscribed reports whether c currently subscribes to (topic, session).
// The dispatcher does not call it: self-delivery follows from the publisher
// appearing in the Subscribers snapshot.
func (r *Registry) IsSubscribed(c Subscriber, topic, session string) bool {
	key := Key{Topic: topic, Session: session}
	id := c.ID()

	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.forward[key]
	if !ok {
		return false
	}
	_, present := subs[id]
	return present
}

// Stats reports the current size of both indices, for periodic logging.
type Stats struct {
	Topics      int
	Connections int
}

// Stats returns a point-in-time snapshot of registry size.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Topics: len(r.forward), Connections: len(r.reverse)}
}
