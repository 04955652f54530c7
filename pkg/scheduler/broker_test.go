package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

type fakeBroker struct {
	reservationID      string
	clientResourceIDs  []string
	releaseCalls       []string
}

func (b *fakeBroker) Reserve(ctx context.Context, pool string, estimate ResourceEstimate) (string, []string, error) {
	return b.reservationID, b.clientResourceIDs, nil
}

func (b *fakeBroker) Release(ctx context.Context, reservationID string) error {
	b.releaseCalls = append(b.releaseCalls, reservationID)
	return nil
}

func TestReservationTrackerReserveAndRelease(t *testing.T) {
	broker := &fakeBroker{reservationID: "res-1", clientResourceIDs: []string{"cr-1", "cr-2"}}
	queryID := uniqueid.Generate()

	var cancelled []uniqueid.ID
	tr := NewReservationTracker(broker, func(q uniqueid.ID, cause PreemptionCause) {
		cancelled = append(cancelled, q)
	})

	st := tr.Reserve(context.Background(), queryID, "root.default", ResourceEstimate{MemoryBytes: 1 << 30})
	require.True(t, st.Ok())

	require.NoError(t, tr.Release(context.Background(), "res-1"))
	require.Equal(t, []string{"res-1"}, broker.releaseCalls)
}

func TestReservationTrackerHandlePreempted(t *testing.T) {
	broker := &fakeBroker{reservationID: "res-1"}
	queryID := uniqueid.Generate()

	var cancelled []uniqueid.ID
	var causes []PreemptionCause
	tr := NewReservationTracker(broker, func(q uniqueid.ID, cause PreemptionCause) {
		cancelled = append(cancelled, q)
		causes = append(causes, cause)
	})

	tr.Reserve(context.Background(), queryID, "root.default", ResourceEstimate{})
	tr.HandlePreempted("res-1")

	require.Equal(t, []uniqueid.ID{queryID}, cancelled)
	require.Equal(t, []PreemptionCause{CausePreempted}, causes)
}

func TestReservationTrackerHandleLost(t *testing.T) {
	broker := &fakeBroker{reservationID: "res-1", clientResourceIDs: []string{"cr-1"}}
	queryID := uniqueid.Generate()

	var causes []PreemptionCause
	tr := NewReservationTracker(broker, func(q uniqueid.ID, cause PreemptionCause) {
		causes = append(causes, cause)
	})

	tr.Reserve(context.Background(), queryID, "root.default", ResourceEstimate{})
	tr.HandleLost("cr-1")

	require.Equal(t, []PreemptionCause{CauseLost}, causes)
}

func TestReservationTrackerNilBrokerIsNoop(t *testing.T) {
	tr := NewReservationTracker(nil, nil)
	st := tr.Reserve(context.Background(), uniqueid.Generate(), "root.default", ResourceEstimate{})
	require.True(t, st.Ok())
	require.NoError(t, tr.Release(context.Background(), "whatever"))
}
