// Package services provides a small Service/Listener lifecycle used by
// every long-lived component in this module (FragmentExecState, Scheduler,
// PeriodicCounterUpdater, FragmentTable) instead of each
// hand-rolling its own start/stop bookkeeping.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is a Service's position in its lifecycle.
type State int

const (
	New State = iota
	Starting
	Running
	Stopping
	Terminated
	Failed
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Terminated:
		return "Terminated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Listener observes a Service's state transitions. Implementations must
// not block; long work should be handed off to its own goroutine.
type Listener interface {
	Starting()
	Running()
	Stopping(from State)
	Terminated(from State)
	Failed(from State, err error)
}

// Service is a component with an explicit start/run/stop lifecycle.
type Service interface {
	StartAsync(ctx context.Context) error
	AwaitRunning(ctx context.Context) error
	StopAsync()
	AwaitTerminated(ctx context.Context) error
	FailureCase() error
	State() State
	AddListener(l Listener)
}

func invalidServiceStateError(got, want State) error {
	return fmt.Errorf("invalid service state: got %s, wanted %s", got, want)
}

// BasicService implements Service around a pair of user functions: startFn
// runs once on StartAsync, and should return only once the service is done
// (like FragmentExecState.Exec driving a fragment to completion); stopFn is
// invoked once on StopAsync to request early termination.
type BasicService struct {
	listeners *serviceListeners

	mu    sync.Mutex
	state State
	err   error

	runningCh    chan struct{}
	terminatedCh chan struct{}

	startFn func(ctx context.Context) error
	stopFn  func()
	cancel  context.CancelFunc // cancels the ctx run() was started with
}

// NewBasicService constructs a Service. startFn may be nil for services that
// have no "running" body beyond existing (see NewNoopService). stopFn may be
// nil if StopAsync has nothing to signal beyond what startFn observes via
// ctx cancellation.
func NewBasicService(startFn func(ctx context.Context) error, stopFn func()) *BasicService {
	return &BasicService{
		state:        New,
		listeners:    newServiceListeners(),
		runningCh:    make(chan struct{}),
		terminatedCh: make(chan struct{}),
		startFn:      startFn,
		stopFn:       stopFn,
	}
}

func (b *BasicService) StartAsync(ctx context.Context) error {
	b.mu.Lock()
	if b.state != New {
		b.mu.Unlock()
		return errors.New("service is not New")
	}
	b.state = Starting
	ctx, b.cancel = context.WithCancel(ctx)
	b.listeners.notify(func(l Listener) { l.Starting() }, false)
	b.mu.Unlock()

	go b.run(ctx)
	return nil
}

func (b *BasicService) run(ctx context.Context) {
	b.mu.Lock()
	b.state = Running
	b.listeners.notify(func(l Listener) { l.Running() }, false)
	close(b.runningCh)
	b.mu.Unlock()

	var err error
	if b.startFn != nil {
		err = b.startFn(ctx)
	} else {
		<-ctx.Done()
	}

	b.mu.Lock()
	from := b.state
	b.err = err
	if err != nil {
		b.state = Failed
		b.listeners.notify(func(l Listener) { l.Failed(from, err) }, true)
	} else {
		b.state = Terminated
		b.listeners.notify(func(l Listener) { l.Terminated(from) }, true)
	}
	close(b.terminatedCh)
	b.mu.Unlock()
}

func (b *BasicService) StopAsync() {
	b.mu.Lock()
	if b.state == New {
		b.state = Terminated
		b.listeners.notify(func(l Listener) { l.Terminated(New) }, true)
		close(b.runningCh)
		close(b.terminatedCh)
		b.mu.Unlock()
		return
	}
	from := b.state
	b.mu.Unlock()

	if from == Running || from == Starting {
		b.mu.Lock()
		if b.state == Running || b.state == Starting {
			b.state = Stopping
			b.listeners.notify(func(l Listener) { l.Stopping(from) }, false)
		}
		b.mu.Unlock()
	}
	if b.stopFn != nil {
		b.stopFn()
	}
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *BasicService) AwaitRunning(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.runningCh:
		if s := b.State(); s != Running {
			return invalidServiceStateError(s, Running)
		}
		return nil
	}
}

func (b *BasicService) AwaitTerminated(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.terminatedCh:
		return nil
	}
}

func (b *BasicService) FailureCase() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *BasicService) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BasicService) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Terminated || b.state == Failed {
		return
	}
	b.listeners.add(l)
}
