// Package fragmentexec implements FragmentExecState,
// the object that owns a plan-fragment executor and drives it through
// prepare -> open -> close, reporting status+profile back to the
// coordinator periodically.
package fragmentexec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/impala-query/fragment-runtime/pkg/rpcerr"
	"github.com/impala-query/fragment-runtime/pkg/rprofile"
	"github.com/impala-query/fragment-runtime/pkg/runtimestate"
	"github.com/impala-query/fragment-runtime/pkg/services"
	"github.com/impala-query/fragment-runtime/pkg/status"
	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

// Phase is FragmentExecState's position in its state machine:
//
//	CREATED -> PREPARED -> EXECUTING -> DONE
//	                     \->  CANCELLED / FAILED
type Phase int

const (
	Created Phase = iota
	Prepared
	Executing
	Done
	Cancelled
	Failed
)

func (p Phase) String() string {
	switch p {
	case Created:
		return "CREATED"
	case Prepared:
		return "PREPARED"
	case Executing:
		return "EXECUTING"
	case Done:
		return "DONE"
	case Cancelled:
		return "CANCELLED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Executor drives one plan fragment: the sink-fed pipeline is entirely
// inside Open, so there is no separate pull loop at this layer.
// Scan/exec-node internals are out of scope (non-goal); Executor is
// the seam a real plan-fragment runner plugs into.
type Executor interface {
	Prepare(ctx context.Context, params ExecPlanFragmentParams) error
	OptimizeCodegen(ctx context.Context) error
	Open(ctx context.Context) error
	Close(ctx context.Context)
	Cancel()
	RuntimeState() *runtimestate.RuntimeState
}

// ExecPlanFragmentParams describes one fragment instance to execute:
// fragment descriptor + instance id + scan ranges. The fragment descriptor
// itself (plan tree, codegen) is an opaque payload produced by the
// frontend (non-goal here).
type ExecPlanFragmentParams struct {
	QueryID            uniqueid.ID
	FragmentInstanceID uniqueid.ID
	PlanFragment       interface{}
	ScanRanges         []interface{}
}

// InsertExecStatus carries insert-side-effects attached to the final
// (done=true) status report: files to move, per-partition appended-row
// counts, per-partition stats.
type InsertExecStatus struct {
	FilesToMove      []string
	NumAppendedRows  map[string]int64
	InsertStats      map[string]string
}

// ReportExecStatusParams is the report a backend sends the coordinator
// after each status-reporting interval or terminal state transition.
type ReportExecStatusParams struct {
	ProtocolVersion    int
	QueryID            uniqueid.ID
	BackendNum         int32
	FragmentInstanceID uniqueid.ID
	Status             status.Status
	Done               bool
	ProfileArchive     string // SerializeToArchiveString output
	ErrorLog           []string
	InsertExecStatus   *InsertExecStatus
}

// ReportExecStatusResult is the coordinator's acknowledgment of a
// ReportExecStatusParams call.
type ReportExecStatusResult struct {
	Status status.Status
}

// CoordinatorClient is the typed RPC stub FragmentExecState reports
// through: ReportExecStatus plus the Reopen/Close lifecycle pkg/rpcclient
// implements. Kept as a narrow interface here (rather than importing
// pkg/rpcclient directly) so this package's retry state machine is
// unit-testable against a fake.
type CoordinatorClient interface {
	ReportExecStatus(ctx context.Context, params ReportExecStatusParams) (ReportExecStatusResult, error)
	Reopen(ctx context.Context) error
}

// FragmentExecState owns one Executor and drives it through the state
// machine, reporting status to coord via client.
type FragmentExecState struct {
	*services.BasicService

	execParams  ExecPlanFragmentParams
	executor    Executor
	coordHost   string
	backendNum  int32
	client      CoordinatorClient

	mu        sync.Mutex
	phase     Phase
	execStatus *status.Cell
}

// New constructs a FragmentExecState for one fragment instance. client is
// the coordinator connection this instance reports status to.
func New(executor Executor, coordHost string, backendNum int32, client CoordinatorClient) *FragmentExecState {
	f := &FragmentExecState{
		executor:   executor,
		coordHost:  coordHost,
		backendNum: backendNum,
		client:     client,
		phase:      Created,
		execStatus: status.NewCell(),
	}
	f.BasicService = services.NewBasicService(f.run, f.stop)
	return f
}

func (f *FragmentExecState) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *FragmentExecState) setPhase(p Phase) {
	f.mu.Lock()
	f.phase = p
	f.mu.Unlock()
}

// Prepare stores params, runs executor preparation, and triggers codegen
// optimization. Single-shot: calling it more than once is a programmer
// error and fails loudly rather than silently reusing stale params.
func (f *FragmentExecState) Prepare(ctx context.Context, params ExecPlanFragmentParams) error {
	if f.Phase() != Created {
		return fmt.Errorf("fragmentexec: Prepare called from phase %s, want CREATED", f.Phase())
	}
	f.execParams = params
	if err := f.executor.Prepare(ctx, params); err != nil {
		f.setPhase(Failed)
		return err
	}
	if err := f.executor.OptimizeCodegen(ctx); err != nil {
		f.setPhase(Failed)
		return err
	}
	f.setPhase(Prepared)
	return nil
}

// Exec runs the executor to completion: Open drives the full pipeline
// (every fragment carries a sink), then Close releases its resources.
// Exec is the body BasicService.run invokes, so starting the underlying
// Service is equivalent to calling Exec asynchronously.
func (f *FragmentExecState) Exec(ctx context.Context) {
	f.setPhase(Executing)
	err := f.executor.Open(ctx)
	f.executor.Close(ctx)
	if err != nil {
		f.UpdateStatus(status.New(status.Internal, "%v", err))
	}
	f.mu.Lock()
	if f.phase == Executing {
		if f.execStatus.Get().Ok() {
			f.phase = Done
		} else if f.execStatus.Get().Code() == status.Cancelled {
			f.phase = Cancelled
		} else {
			f.phase = Failed
		}
	}
	f.mu.Unlock()
}

func (f *FragmentExecState) run(ctx context.Context) error {
	f.Exec(ctx)
	return nil
}

func (f *FragmentExecState) stop() {
	f.Cancel()
}

// Cancel records CANCELLED (iff exec_status was OK) and signals the
// executor; idempotent.
func (f *FragmentExecState) Cancel() {
	if f.execStatus.Set(status.New(status.Cancelled, "cancelled")) {
		f.setPhase(Cancelled)
	}
	f.executor.Cancel()
}

// UpdateStatus records s if it is the first non-OK status seen, per the
// sticky first-non-OK-wins rule.
func (f *FragmentExecState) UpdateStatus(s status.Status) status.Status {
	f.execStatus.Set(s)
	return f.execStatus.Get()
}

// ExecStatus returns the current sticky execution status.
func (f *FragmentExecState) ExecStatus() status.Status {
	return f.execStatus.Get()
}

// ReportStatusCb reports s/profile/done to the coordinator. It is only
// ever called from the executor's reporter thread (at-most-one in
// flight), so the reported status always reflects the most recent
// execution status by construction. On a transport failure it performs
// exactly one Reopen()+retry; if either fails, the fragment cancels
// itself. Any other error is final (no retry).
func (f *FragmentExecState) ReportStatusCb(ctx context.Context, s status.Status, profile *rprofile.Profile, done bool) {
	execStatus := f.UpdateStatus(s)

	archive, err := profile.SerializeToArchiveString()
	if err != nil {
		f.UpdateStatus(status.New(status.Internal, "failed to serialize profile: %v", err))
		return
	}

	params := ReportExecStatusParams{
		ProtocolVersion:    1,
		QueryID:            f.execParams.QueryID,
		BackendNum:         f.backendNum,
		FragmentInstanceID: f.execParams.FragmentInstanceID,
		Status:             execStatus,
		Done:               done,
		ProfileArchive:     archive,
	}

	if rs := f.executor.RuntimeState(); rs != nil {
		params.ErrorLog = rs.GetUnreportedErrors()
	}

	_, rpcErr := f.client.ReportExecStatus(ctx, params)
	if rpcErr == nil {
		return
	}

	var transportErr *rpcerr.TransportError
	if errors.As(rpcErr, &transportErr) {
		if reopenErr := f.client.Reopen(ctx); reopenErr != nil {
			f.UpdateStatus(status.New(status.Transport, "reopen failed: %v", reopenErr))
			f.Cancel()
			return
		}
		_, retryErr := f.client.ReportExecStatus(ctx, params)
		if retryErr != nil {
			f.UpdateStatus(status.New(status.Transport, "retry failed: %v", retryErr))
			f.Cancel()
		}
		return
	}

	// Any other exception class is final.
	f.UpdateStatus(status.New(status.Internal, "ReportExecStatus to %s failed: %v", f.coordHost, rpcErr))
}
