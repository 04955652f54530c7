// Package queue implements admission queueing ahead of
// dispatch: requests wait in a per-pool queue (the pool resolved by
// pkg/scheduler/poolauth.GetYarnPool) before the scheduler assigns them a
// QuerySchedule.
package queue

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Request is one admission-queue entry: a priority-queueable Op plus the
// pool it was resolved into.
type Request interface {
	Op
	Pool() string
}

// AdmissionQueue fans requests out into one priority queue per admission
// pool, so a busy pool cannot starve another's throughput.
type AdmissionQueue struct {
	queueLength *prometheus.GaugeVec

	mu     sync.Mutex
	queues map[string]*priorityQueue
}

// NewAdmissionQueue returns an empty AdmissionQueue. queueLength, if
// non-nil, is incremented/decremented with labels (pool, priority) as
// requests move through the queue.
func NewAdmissionQueue(queueLength *prometheus.GaugeVec) *AdmissionQueue {
	return &AdmissionQueue{
		queueLength: queueLength,
		queues:      map[string]*priorityQueue{},
	}
}

func (a *AdmissionQueue) poolQueue(pool string) *priorityQueue {
	a.mu.Lock()
	defer a.mu.Unlock()
	pq, ok := a.queues[pool]
	if !ok {
		pq = newPriorityQueue()
		a.queues[pool] = pq
	}
	return pq
}

// Enqueue admits r into its pool's queue.
func (a *AdmissionQueue) Enqueue(r Request) {
	a.poolQueue(r.Pool()).enqueue(r)
	if a.queueLength != nil {
		a.queueLength.WithLabelValues(r.Pool(), strconv.FormatInt(r.Priority(), 10)).Inc()
	}
}

// Dequeue blocks for the next-highest-priority request in pool. If
// checkMinPriority and the head's priority is below minPriority (the
// pool's current admission threshold), it returns nil without dequeuing.
func (a *AdmissionQueue) Dequeue(pool string, minPriority int64, checkMinPriority bool) Request {
	op := a.poolQueue(pool).dequeue(minPriority, checkMinPriority)
	if op == nil {
		return nil
	}
	r := op.(Request)
	if a.queueLength != nil {
		a.queueLength.WithLabelValues(pool, strconv.FormatInt(r.Priority(), 10)).Dec()
	}
	return r
}

// Length returns the number of requests currently queued in pool.
func (a *AdmissionQueue) Length(pool string) int {
	return a.poolQueue(pool).length()
}

// ClosePool closes pool's queue: further Dequeue calls drain it without
// blocking, and Enqueue panics (mirrors priorityQueue.enqueue's contract).
func (a *AdmissionQueue) ClosePool(pool string) {
	a.poolQueue(pool).close()
}
