package scheduler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/membership"
	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func mkBackend(id, host, ip string) backend.Descriptor {
	return backend.Descriptor{ID: id, Host: host, IP: ip, Port: 22000}
}

// Invariant 6 / S4: a scan range whose locality hosts intersect known
// backends is assigned to one of them, incrementing the local counter.
func TestComputeScanRangeAssignmentLocal(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatic(mkBackend("coord", "coordHost", "10.0.0.1"), []backend.Descriptor{
		mkBackend("b1", "hostA", "10.0.0.2"),
		mkBackend("b2", "hostB", "10.0.0.3"),
		mkBackend("b3", "hostC", "10.0.0.4"),
	}, reg)

	r1 := backend.ScanRangeLocation{Hosts: []string{"hostA", "hostB"}}
	assignments := s.ComputeScanRangeAssignment(false, []backend.ScanRangeLocation{r1})

	require.Len(t, assignments, 1)
	require.Contains(t, []string{"hostA", "hostB"}, assignments[0].Host)
	require.Equal(t, float64(1), counterValue(t, s.totalAssignments))
	require.Equal(t, float64(1), counterValue(t, s.totalLocalAssignments))
}

// S4: a scan range with no known-host overlap falls back to global
// round-robin and does not bump the local counter.
func TestComputeScanRangeAssignmentNonLocalRoundRobin(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatic(mkBackend("coord", "coordHost", "10.0.0.1"), []backend.Descriptor{
		mkBackend("b1", "hostA", "10.0.0.2"),
		mkBackend("b2", "hostB", "10.0.0.3"),
		mkBackend("b3", "hostC", "10.0.0.4"),
	}, reg)

	r2 := backend.ScanRangeLocation{Hosts: []string{"hostD"}}
	assignments := s.ComputeScanRangeAssignment(false, []backend.ScanRangeLocation{r2})

	require.Len(t, assignments, 1)
	require.Contains(t, []string{"hostA", "hostB", "hostC"}, assignments[0].Host)
	require.Equal(t, float64(1), counterValue(t, s.totalAssignments))
	require.Equal(t, float64(0), counterValue(t, s.totalLocalAssignments))
}

// Invariant 7 / fragment pinned to coordinator: every range goes to the
// coordinator regardless of locality.
func TestComputeScanRangeAssignmentPinnedToCoordinator(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatic(mkBackend("coord", "coordHost", "10.0.0.1"), []backend.Descriptor{
		mkBackend("b1", "hostA", "10.0.0.2"),
	}, reg)

	r1 := backend.ScanRangeLocation{Hosts: []string{"hostA"}}
	assignments := s.ComputeScanRangeAssignment(true, []backend.ScanRangeLocation{r1})

	require.Len(t, assignments, 1)
	require.Equal(t, "coordHost", assignments[0].Host)
}

// ComputeFragmentHosts is the union of assigned hosts; a fragment with no
// scan source runs on the coordinator alone.
func TestComputeFragmentHosts(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatic(mkBackend("coord", "coordHost", "10.0.0.1"), []backend.Descriptor{
		mkBackend("b1", "hostA", "10.0.0.2"),
		mkBackend("b2", "hostB", "10.0.0.3"),
	}, reg)

	assignments := []Assignment{{Host: "hostA"}, {Host: "hostB"}, {Host: "hostA"}}
	hosts := s.ComputeFragmentHosts(assignments)
	require.ElementsMatch(t, []string{"hostA", "hostB"}, hosts)

	require.Equal(t, []string{"coordHost"}, s.ComputeFragmentHosts(nil))
}

// Invariant 8: a membership delta resets round-robin state so the next
// non-local assignment starts over from the beginning of the new backend
// list.
func TestMembershipDeltaResetsRoundRobin(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatic(mkBackend("coord", "coordHost", "10.0.0.1"), []backend.Descriptor{
		mkBackend("b1", "hostA", "10.0.0.2"),
		mkBackend("b2", "hostB", "10.0.0.3"),
		mkBackend("b3", "hostC", "10.0.0.4"),
	}, reg)

	// Consume one slot of the global round-robin.
	s.ComputeScanRangeAssignment(false, []backend.ScanRangeLocation{{Hosts: []string{"hostD"}}})
	require.Equal(t, 1, s.globalRRIdx)

	s.applyDelta(membership.Delta{Removed: []string{"b1"}})

	s.mu.Lock()
	idx := s.globalRRIdx
	s.mu.Unlock()
	require.Equal(t, 0, idx)
}
