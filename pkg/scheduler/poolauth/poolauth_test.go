package poolauth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/status"
)

const testDoc = `
user_pools:
  alice:
    - root.alice
    - root.shared
default_pools:
  - root.default
`

func TestGetYarnPoolRequestedAndPermitted(t *testing.T) {
	w, err := Load([]byte(testDoc))
	require.NoError(t, err)

	pool, st := w.GetYarnPool("alice", ScheduleOptions{RequestedPool: "root.shared"})
	require.True(t, st.Ok())
	require.Equal(t, "root.shared", pool)
}

func TestGetYarnPoolRequestedNotPermittedFallsBackToFirst(t *testing.T) {
	w, err := Load([]byte(testDoc))
	require.NoError(t, err)

	pool, st := w.GetYarnPool("alice", ScheduleOptions{RequestedPool: "root.other"})
	require.True(t, st.Ok())
	require.Equal(t, "root.alice", pool)
}

func TestGetYarnPoolUnknownUserUsesDefault(t *testing.T) {
	w, err := Load([]byte(testDoc))
	require.NoError(t, err)

	pool, st := w.GetYarnPool("bob", ScheduleOptions{})
	require.True(t, st.Ok())
	require.Equal(t, "root.default", pool)
}

func TestGetYarnPoolNoPoolsPermissionDenied(t *testing.T) {
	w, err := Load([]byte(`user_pools: {}`))
	require.NoError(t, err)

	_, st := w.GetYarnPool("nobody", ScheduleOptions{})
	require.Equal(t, status.PermissionDenied, st.Code())
}

func TestGetYarnPoolRequestedDefaultPool(t *testing.T) {
	w, err := Load([]byte(testDoc))
	require.NoError(t, err)

	pool, st := w.GetYarnPool("bob", ScheduleOptions{RequestedPool: "root.default"})
	require.True(t, st.Ok())
	require.Equal(t, "root.default", pool)
}
