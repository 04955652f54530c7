package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBasicServiceLifecycle(t *testing.T) {
	started := make(chan struct{})
	stop := make(chan struct{})
	svc := NewBasicService(func(ctx context.Context) error {
		close(started)
		<-stop
		return nil
	}, func() { close(stop) })

	ctx := context.Background()
	require.NoError(t, svc.StartAsync(ctx))
	require.NoError(t, svc.AwaitRunning(ctx))
	require.Equal(t, Running, svc.State())

	<-started
	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(ctx))
	require.Equal(t, Terminated, svc.State())
	require.NoError(t, svc.FailureCase())
}

func TestBasicServiceFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := NewBasicService(func(ctx context.Context) error {
		return boom
	}, nil)

	ctx := context.Background()
	require.NoError(t, svc.StartAsync(ctx))
	require.NoError(t, svc.AwaitTerminated(ctx))
	require.Equal(t, Failed, svc.State())
	require.Equal(t, boom, svc.FailureCase())
}

func TestBasicServiceListenerReceivesTransitions(t *testing.T) {
	svc := NewNoopService()

	type event = struct {
		kind string
		from State
	}
	events := make(chan event, 8)
	svc.AddListener(&recordingListener{events: events})

	ctx := context.Background()
	require.NoError(t, svc.StartAsync(ctx))
	require.NoError(t, svc.AwaitRunning(ctx))
	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(ctx))

	var got []event
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-timeout:
			t.Fatal("timed out waiting for listener events")
		}
	}
	require.Equal(t, "starting", got[0].kind)
	require.Equal(t, "running", got[1].kind)
	require.Equal(t, "terminated", got[2].kind)
}

type recordingListener struct {
	NoopListener
	events chan struct {
		kind string
		from State
	}
}

func (r *recordingListener) Starting() {
	r.events <- struct {
		kind string
		from State
	}{"starting", New}
}
func (r *recordingListener) Running() {
	r.events <- struct {
		kind string
		from State
	}{"running", Starting}
}
func (r *recordingListener) Terminated(from State) {
	r.events <- struct {
		kind string
		from State
	}{"terminated", from}
}

func TestStartingFromNonNewStateFails(t *testing.T) {
	svc := NewNoopService()
	ctx := context.Background()
	require.NoError(t, svc.StartAsync(ctx))
	require.Error(t, svc.StartAsync(ctx))
}
