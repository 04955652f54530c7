package memtracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumePropagatesToAncestors(t *testing.T) {
	root := NewRootTracker("process", 0)
	query := root.NewChild("query", 100)
	inst := query.NewChild("instance", 0)

	inst.Consume(40)
	require.EqualValues(t, 40, inst.Consumption())
	require.EqualValues(t, 40, query.Consumption())
	require.EqualValues(t, 40, root.Consumption())
}

// S3 — mem limit scenario: query limit 100, instance allocates 60 then
// attempts 50.
func TestTryConsumeRejectsOverHardLimit(t *testing.T) {
	root := NewRootTracker("process", 0)
	query := root.NewChild("query", 100)
	inst := query.NewChild("instance", 0)

	ok, exceeded := inst.TryConsume(60)
	require.True(t, ok)
	require.Nil(t, exceeded)

	ok, exceeded = inst.TryConsume(50)
	require.False(t, ok)
	require.Same(t, query, exceeded)
	// Rejected attempt must not have changed consumption anywhere.
	require.EqualValues(t, 60, inst.Consumption())
	require.EqualValues(t, 60, query.Consumption())
}

func TestReleaseSubtractsFromAncestors(t *testing.T) {
	root := NewRootTracker("process", 0)
	child := root.NewChild("child", 0)
	child.Consume(100)
	child.Release(30)
	require.EqualValues(t, 70, child.Consumption())
	require.EqualValues(t, 70, root.Consumption())
}

func TestPeakTracksHighWaterMark(t *testing.T) {
	root := NewRootTracker("process", 0)
	root.Consume(100)
	root.Release(60)
	require.EqualValues(t, 40, root.Consumption())
	require.EqualValues(t, 100, root.Peak())
}
