package scheduler

import (
	"context"
	"sync"

	"github.com/impala-query/fragment-runtime/pkg/status"
	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

// ResourceEstimate is the resource ask attached to a fragment's placement
// request, sized by the frontend's cost estimator (opaque to this module).
type ResourceEstimate struct {
	MemoryBytes int64
	VCores      int32
}

// ResourceBroker is the narrow interface Scheduler needs from a cluster
// resource manager (e.g. YARN) to reserve capacity for a query before
// dispatching its fragments. Optional: a Scheduler with no broker
// configured skips reservation entirely.
type ResourceBroker interface {
	Reserve(ctx context.Context, pool string, estimate ResourceEstimate) (reservationID string, clientResourceIDs []string, err error)
	Release(ctx context.Context, reservationID string) error
}

// PreemptionCause distinguishes why a reservation or client resource was
// taken away, so the coordinator can cancel the owning query with a
// specific cause rather than a generic CANCELLED.
type PreemptionCause int

const (
	CausePreempted PreemptionCause = iota
	CauseLost
)

// ReservationTracker registers active reservations and client resources
// granted by a ResourceBroker, and dispatches preemption/loss callbacks to
// the coordinator owning each one.
type ReservationTracker struct {
	broker ResourceBroker

	mu                    sync.Mutex
	reservationCoord      map[string]uniqueid.ID // reservation id -> query id
	clientResourceCoord   map[string]uniqueid.ID // client resource id -> query id
	onCancel              func(queryID uniqueid.ID, cause PreemptionCause)
}

// NewReservationTracker returns a tracker that calls onCancel when a
// reservation or client resource belonging to a query is preempted or
// lost. broker may be nil, meaning no resource brokering is configured.
func NewReservationTracker(broker ResourceBroker, onCancel func(queryID uniqueid.ID, cause PreemptionCause)) *ReservationTracker {
	return &ReservationTracker{
		broker:              broker,
		reservationCoord:    map[string]uniqueid.ID{},
		clientResourceCoord: map[string]uniqueid.ID{},
		onCancel:            onCancel,
	}
}

// Reserve requests a reservation for queryID sized to estimate in pool,
// and registers it (and every granted client resource) against queryID. A
// nil broker makes Reserve a no-op returning Ok.
func (t *ReservationTracker) Reserve(ctx context.Context, queryID uniqueid.ID, pool string, estimate ResourceEstimate) status.Status {
	if t.broker == nil {
		return status.Ok
	}
	reservationID, clientResourceIDs, err := t.broker.Reserve(ctx, pool, estimate)
	if err != nil {
		return status.New(status.Internal, "resource reservation failed: %v", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.reservationCoord[reservationID] = queryID
	for _, id := range clientResourceIDs {
		t.clientResourceCoord[id] = queryID
	}
	return status.Ok
}

// Release symmetrically removes reservationID (and anything still
// registered under it) from the active sets and asks the broker to
// release the underlying reservation.
func (t *ReservationTracker) Release(ctx context.Context, reservationID string) error {
	t.mu.Lock()
	if queryID, ok := t.reservationCoord[reservationID]; ok {
		for id, q := range t.clientResourceCoord {
			if q == queryID {
				delete(t.clientResourceCoord, id)
			}
		}
	}
	delete(t.reservationCoord, reservationID)
	t.mu.Unlock()

	if t.broker == nil {
		return nil
	}
	return t.broker.Release(ctx, reservationID)
}

// HandlePreempted looks up the coordinator owning reservationID and
// triggers query-level cancellation with CausePreempted.
func (t *ReservationTracker) HandlePreempted(reservationID string) {
	t.handle(t.reservationCoord, reservationID, CausePreempted)
}

// HandleLost looks up the coordinator owning clientResourceID and
// triggers query-level cancellation with CauseLost.
func (t *ReservationTracker) HandleLost(clientResourceID string) {
	t.handle(t.clientResourceCoord, clientResourceID, CauseLost)
}

func (t *ReservationTracker) handle(table map[string]uniqueid.ID, id string, cause PreemptionCause) {
	t.mu.Lock()
	queryID, ok := table[id]
	delete(table, id)
	t.mu.Unlock()

	if ok && t.onCancel != nil {
		t.onCancel(queryID, cause)
	}
}
