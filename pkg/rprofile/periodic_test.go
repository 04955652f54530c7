package rprofile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodicCounterUpdaterRateCounter(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	src := p.AddCounter("BytesRead", BYTES, "")
	rate := p.AddCounter("BytesReadRate", BYTES, "")

	u := NewPeriodicCounterUpdater(5 * time.Millisecond)
	u.RegisterRateCounter(rate, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, u.StartAsync(ctx))
	require.NoError(t, u.AwaitRunning(ctx))

	src.Add(1000)
	time.Sleep(30 * time.Millisecond)

	u.StopAsync()
	require.NoError(t, u.AwaitTerminated(context.Background()))

	require.Greater(t, rate.Value(), int64(0))
}

func TestBucketingCounterClampsToRange(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	src := p.AddCounter("NumThreads", UNIT, "")
	bc := p.AddBucketingCounters("ThreadsHistogram", src, 4)

	src.Set(100) // out of range, should clamp to last bucket
	bc.sample()
	require.EqualValues(t, 1, bc.buckets[3].Value())

	src.Set(-5) // clamp to first bucket
	bc.sample()
	require.EqualValues(t, 1, bc.buckets[0].Value())
}
