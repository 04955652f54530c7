package distexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

func TestFragmentTableAddrLookup(t *testing.T) {
	ft := NewFragmentTable(time.Minute)
	key := MakeFragmentKey(uniqueid.Generate(), uniqueid.Generate())

	_, ok := ft.Addr(key)
	require.False(t, ok)

	ft.AddAddress(key, "backend-1:22000")
	addr, ok := ft.Addr(key)
	require.True(t, ok)
	require.Equal(t, "backend-1:22000", addr)
	require.Equal(t, 1, ft.Size())
}

func TestFragmentTableExpirySweep(t *testing.T) {
	ft := NewFragmentTable(10 * time.Millisecond)
	key := MakeFragmentKey(uniqueid.Generate(), uniqueid.Generate())
	ft.AddAddress(key, "backend-1:22000")
	require.Equal(t, 1, ft.Size())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ft.StartAsync(ctx))
	require.NoError(t, ft.AwaitRunning(ctx))

	require.Eventually(t, func() bool {
		return ft.Size() == 0
	}, time.Second, 5*time.Millisecond)

	ft.StopAsync()
	require.NoError(t, ft.AwaitTerminated(context.Background()))
}
