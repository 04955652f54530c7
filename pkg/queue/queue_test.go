package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testRequest struct {
	key      string
	priority int64
	pool     string
}

func (r testRequest) Key() string      { return r.key }
func (r testRequest) Priority() int64  { return r.priority }
func (r testRequest) Pool() string     { return r.pool }

func TestAdmissionQueueOrdersByPriorityWithinPool(t *testing.T) {
	q := NewAdmissionQueue(nil)
	q.Enqueue(testRequest{key: "a", priority: 1, pool: "root.default"})
	q.Enqueue(testRequest{key: "b", priority: 5, pool: "root.default"})
	q.Enqueue(testRequest{key: "c", priority: 3, pool: "root.default"})

	require.Equal(t, "b", q.Dequeue("root.default", 0, false).Key())
	require.Equal(t, "c", q.Dequeue("root.default", 0, false).Key())
	require.Equal(t, "a", q.Dequeue("root.default", 0, false).Key())
}

func TestAdmissionQueueIsolatesPools(t *testing.T) {
	q := NewAdmissionQueue(nil)
	q.Enqueue(testRequest{key: "a", priority: 1, pool: "root.p1"})
	q.Enqueue(testRequest{key: "b", priority: 1, pool: "root.p2"})

	require.Equal(t, 1, q.Length("root.p1"))
	require.Equal(t, 1, q.Length("root.p2"))
	require.Equal(t, "a", q.Dequeue("root.p1", 0, false).Key())
	require.Equal(t, 0, q.Length("root.p1"))
	require.Equal(t, 1, q.Length("root.p2"))
}

func TestAdmissionQueueMinPriorityHoldsBack(t *testing.T) {
	q := NewAdmissionQueue(nil)
	q.Enqueue(testRequest{key: "a", priority: 2, pool: "root.default"})

	require.Nil(t, q.Dequeue("root.default", 5, true))
	require.Equal(t, 1, q.Length("root.default"))
}

func TestAdmissionQueueDedupsByKey(t *testing.T) {
	q := NewAdmissionQueue(nil)
	q.Enqueue(testRequest{key: "a", priority: 1, pool: "root.default"})
	q.Enqueue(testRequest{key: "a", priority: 9, pool: "root.default"})

	require.Equal(t, 1, q.Length("root.default"))
}

func TestAdmissionQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewAdmissionQueue(nil)
	done := make(chan Request, 1)
	go func() {
		done <- q.Dequeue("root.default", 0, false)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(testRequest{key: "a", priority: 1, pool: "root.default"})

	select {
	case r := <-done:
		require.Equal(t, "a", r.Key())
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}
