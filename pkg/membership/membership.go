// Package membership implements an ordered feed of backend-set deltas the
// Scheduler subscribes to in its dynamic construction mode. A statestore
// "membership" topic is modeled here as a single well-known key whose
// value is the full backend set; KVStore.WatchKey delivers each update as a
// Delta computed against the previous snapshot.
package membership

import (
	"context"

	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
)

// TopicKey is the well-known statestore topic name membership updates
// are published under.
const TopicKey = "impala-membership"

// Delta is one batch of membership changes: backends newly observed
// (Added, keyed by backend id) and backend ids that departed (Removed).
// A subscriber's round-robin state must be reset on receipt of any Delta.
type Delta struct {
	Added   map[string]backend.Descriptor
	Removed []string
}

// KVStore is the narrow key-value-with-watch interface this package needs
// from a membership backing store (a consul/etcd client wrapper in a real
// deployment). WatchKey invokes f with every observed value for key until
// ctx is cancelled or f returns false.
type KVStore interface {
	WatchKey(ctx context.Context, key string, f func(value interface{}) (more bool))
}

// Subscriber consumes a KVStore's watch stream for TopicKey and emits
// Deltas, maintaining the previous snapshot needed to compute Added/Removed.
type Subscriber struct {
	store KVStore

	prev map[string]backend.Descriptor
}

// NewSubscriber returns a Subscriber reading membership from store.
func NewSubscriber(store KVStore) *Subscriber {
	return &Subscriber{store: store, prev: map[string]backend.Descriptor{}}
}

// Run blocks, invoking onDelta for every membership change observed until
// ctx is cancelled. onDelta must not block.
func (s *Subscriber) Run(ctx context.Context, onDelta func(Delta)) {
	s.store.WatchKey(ctx, TopicKey, func(value interface{}) bool {
		snapshot, ok := value.(map[string]backend.Descriptor)
		if !ok {
			return true
		}
		onDelta(s.diff(snapshot))
		return true
	})
}

func (s *Subscriber) diff(snapshot map[string]backend.Descriptor) Delta {
	d := Delta{Added: map[string]backend.Descriptor{}}
	for id, desc := range snapshot {
		if _, ok := s.prev[id]; !ok {
			d.Added[id] = desc
		}
	}
	for id := range s.prev {
		if _, ok := snapshot[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	s.prev = snapshot
	return d
}
