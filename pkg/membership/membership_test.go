package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
)

type fakeKVStore struct {
	values []map[string]backend.Descriptor
}

func (f *fakeKVStore) WatchKey(ctx context.Context, key string, fn func(value interface{}) bool) {
	for _, v := range f.values {
		if !fn(v) {
			return
		}
	}
}

func TestSubscriberComputesAddedAndRemoved(t *testing.T) {
	store := &fakeKVStore{values: []map[string]backend.Descriptor{
		{"b1": {ID: "b1", Host: "hostA"}},
		{"b1": {ID: "b1", Host: "hostA"}, "b2": {ID: "b2", Host: "hostB"}},
		{"b2": {ID: "b2", Host: "hostB"}},
	}}

	sub := NewSubscriber(store)
	var deltas []Delta
	sub.Run(context.Background(), func(d Delta) {
		deltas = append(deltas, d)
	})

	require.Len(t, deltas, 3)
	require.Contains(t, deltas[0].Added, "b1")
	require.Empty(t, deltas[0].Removed)

	require.Contains(t, deltas[1].Added, "b2")
	require.Empty(t, deltas[1].Removed)

	require.Empty(t, deltas[2].Added)
	require.Equal(t, []string{"b1"}, deltas[2].Removed)
}
