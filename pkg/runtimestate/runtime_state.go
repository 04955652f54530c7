// Package runtimestate implements the per-fragment-instance execution
// context: memory tracker hierarchy, error log, and the query-wide
// sticky-status cell every fragment instance checks before continuing
// work.
package runtimestate

import (
	"fmt"
	"sync"

	"github.com/impala-query/fragment-runtime/pkg/memtracker"
	"github.com/impala-query/fragment-runtime/pkg/rprofile"
	"github.com/impala-query/fragment-runtime/pkg/status"
	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

const (
	// DefaultMaxErrors is what New clamps a non-positive max-errors option
	// to: a query that never sets max_errors, or sets it to 0, still gets a
	// bounded error log instead of an unbounded one.
	DefaultMaxErrors = 100

	// DefaultBatchSize is the row batch size a non-positive option clamps to.
	DefaultBatchSize = 1024
)

// QueryOptions carries the per-query knobs; New clamps non-positive
// MaxErrors and BatchSize to their defaults.
type QueryOptions struct {
	MaxErrors      int
	BatchSize      int
	DisableCodegen bool
	QueryMemLimit  int64 // bytes, 0 means unlimited
}

// QueryContext carries options, now_string, and user for a query, produced
// by the frontend/coordinator and handed unchanged to every fragment
// instance of that query.
type QueryContext struct {
	QueryID     uniqueid.ID
	User        string
	NowString   string
	Options     QueryOptions
}

// ScanSource stands in for the columnar scanner (explicit non-goal):
// RowBatch production is entirely outside this module.
type ScanSource interface {
	Next() (batch interface{}, eos bool, err error)
}

// CodegenContext stands in for the LLVM codegen internals (non-goal);
// RuntimeState manages only its lifetime.
type CodegenContext interface {
	Optimize() error
	Close()
}

type noopCodegen struct{}

func (noopCodegen) Optimize() error { return nil }
func (noopCodegen) Close()          {}

// ObjectPool is a minimal arena for transient per-instance allocations,
// e.g. data-stream receiver handles. It exists so RuntimeState has somewhere
// to register cleanup callbacks invoked in Close: a handle's life is bounded
// by the ObjectPool that owns it.
type ObjectPool struct {
	mu      sync.Mutex
	closers []func()
}

func NewObjectPool() *ObjectPool { return &ObjectPool{} }

// Add registers closer to run (LIFO) when the pool is closed.
func (p *ObjectPool) Add(closer func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, closer)
}

func (p *ObjectPool) Close() {
	p.mu.Lock()
	closers := p.closers
	p.closers = nil
	p.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// FileError aggregates per-file error counts.
type FileError struct {
	Filename string
	Count    int
}

// RuntimeState is the per-fragment-instance execution context: memory
// tracker hierarchy, error log, and sticky query status.
type RuntimeState struct {
	fragmentInstanceID uniqueid.ID
	queryCtx           QueryContext

	objectPool *ObjectPool
	codegen    CodegenContext

	profile *rprofile.Profile

	queryMemTracker    *memtracker.Tracker
	instanceMemTracker *memtracker.Tracker
	udfMemTracker      *memtracker.Tracker

	queryStatus *status.Cell

	errMu              sync.Mutex
	errorLog           []string
	unreportedErrorIdx int

	fileErrMu sync.Mutex
	fileErrors []FileError

	cancelled chan struct{}
	cancelOnce sync.Once
}

// New constructs a RuntimeState for fragmentInstanceID executing under
// queryCtx, with profile as its RuntimeProfile node. The clamping of
// max_errors/batch_size is applied to a copy of queryCtx.Options so callers
// retain the original for comparison in tests.
func New(fragmentInstanceID uniqueid.ID, queryCtx QueryContext, profile *rprofile.Profile) *RuntimeState {
	opts := queryCtx.Options
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	queryCtx.Options = opts

	rs := &RuntimeState{
		fragmentInstanceID: fragmentInstanceID,
		queryCtx:           queryCtx,
		objectPool:         NewObjectPool(),
		profile:            profile,
		queryStatus:        status.NewCell(),
		cancelled:          make(chan struct{}),
	}

	if !opts.DisableCodegen {
		rs.codegen = noopCodegen{}
	}

	profile.AddCounter("TotalCpuTime", rprofile.TIME_NS, "")
	profile.AddCounter("TotalStorageWaitTime", rprofile.TIME_NS, "")
	profile.AddCounter("TotalNetworkWaitTime", rprofile.TIME_NS, "")

	return rs
}

func (rs *RuntimeState) FragmentInstanceID() uniqueid.ID { return rs.fragmentInstanceID }
func (rs *RuntimeState) QueryContext() QueryContext       { return rs.queryCtx }
func (rs *RuntimeState) Profile() *rprofile.Profile        { return rs.profile }
func (rs *RuntimeState) ObjectPool() *ObjectPool            { return rs.objectPool }
func (rs *RuntimeState) Codegen() CodegenContext            { return rs.codegen }

// InitMemTrackers wires this instance's mem trackers: queryTracker (shared
// by every fragment instance of the same query on this node, created by
// the caller once per query) is the parent of a fresh instance tracker,
// which in turn parents a UDF tracker.
func (rs *RuntimeState) InitMemTrackers(queryTracker *memtracker.Tracker, physicalMemBytes int64) {
	rs.queryMemTracker = queryTracker
	rs.instanceMemTracker = queryTracker.NewChildWithCounter(rs.profile.Name(), 0, rs.profile)
	rs.udfMemTracker = rs.instanceMemTracker.NewChild("UDFs", 0)

	if limit := rs.queryCtx.Options.QueryMemLimit; limit > 0 && physicalMemBytes > 0 && limit > physicalMemBytes {
		rs.LogError(fmt.Sprintf(
			"Memory limit %d bytes exceeds physical memory of %d bytes", limit, physicalMemBytes))
	}
}

func (rs *RuntimeState) QueryMemTracker() *memtracker.Tracker    { return rs.queryMemTracker }
func (rs *RuntimeState) InstanceMemTracker() *memtracker.Tracker { return rs.instanceMemTracker }
func (rs *RuntimeState) UdfMemTracker() *memtracker.Tracker      { return rs.udfMemTracker }

// LogError appends error to the bounded error log, returning whether it
// was recorded (false means the log was already at max_errors and the
// entry was silently dropped "bounded diagnostic
// channel").
func (rs *RuntimeState) LogError(error string) bool {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	if len(rs.errorLog) >= rs.queryCtx.Options.MaxErrors {
		return false
	}
	rs.errorLog = append(rs.errorLog, error)
	return true
}

// LogStatus logs s's message, a no-op if s is OK.
func (rs *RuntimeState) LogStatus(s status.Status) {
	if s.Ok() {
		return
	}
	rs.LogError(s.Error())
}

// ErrorLogIsEmpty returns true only when the error log has no entries.
func (rs *RuntimeState) ErrorLogIsEmpty() bool {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	return len(rs.errorLog) == 0
}

// ErrorLog returns every logged error joined by newlines.
func (rs *RuntimeState) ErrorLog() string {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	out := ""
	for i, e := range rs.errorLog {
		if i > 0 {
			out += "\n"
		}
		out += e
	}
	return out
}

// GetUnreportedErrors returns the errors logged since the last call and
// advances the watermark; calling it twice with no intervening LogError
// returns an empty slice the second time.
func (rs *RuntimeState) GetUnreportedErrors() []string {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	if rs.unreportedErrorIdx >= len(rs.errorLog) {
		return nil
	}
	out := append([]string(nil), rs.errorLog[rs.unreportedErrorIdx:]...)
	rs.unreportedErrorIdx = len(rs.errorLog)
	return out
}

// ReportFileErrors aggregates numErrors for filename into the file-error
// list, separate from the general error log.
func (rs *RuntimeState) ReportFileErrors(filename string, numErrors int) {
	rs.fileErrMu.Lock()
	defer rs.fileErrMu.Unlock()
	rs.fileErrors = append(rs.fileErrors, FileError{Filename: filename, Count: numErrors})
}

// FileErrors returns the aggregated (filename, count) pairs.
func (rs *RuntimeState) FileErrors() []FileError {
	rs.fileErrMu.Lock()
	defer rs.fileErrMu.Unlock()
	return append([]FileError(nil), rs.fileErrors...)
}

// SetMemLimitExceeded atomically transitions query_status to
// MEM_LIMIT_EXCEEDED iff it was OK, logging one detailed entry (process
// tracker usage if that's what exceeded, otherwise the query tracker's);
// idempotent on re-entry (re-entrant calls return the status unchanged and
// log nothing further).
func (rs *RuntimeState) SetMemLimitExceeded(processTracker *memtracker.Tracker, tracker *memtracker.Tracker, failedAllocationSize int64) status.Status {
	s := status.New(status.MemLimitExceeded, "Memory Limit Exceeded")
	if !rs.queryStatus.Set(s) {
		return rs.queryStatus.Get()
	}

	msg := "Memory Limit Exceeded\n"
	if failedAllocationSize != 0 && tracker != nil {
		msg += fmt.Sprintf("  %s could not allocate %d bytes without exceeding limit.\n", tracker.Label(), failedAllocationSize)
	}
	if processTracker != nil && processTracker.Limit() > 0 && processTracker.Consumption() > processTracker.Limit() {
		msg += processTracker.LogUsage("")
	} else if rs.queryMemTracker != nil {
		msg += rs.queryMemTracker.LogUsage("")
	}
	rs.LogError(msg)
	return rs.queryStatus.Get()
}

// CheckQueryState returns the current query status, additionally
// transitioning to MEM_LIMIT_EXCEEDED if instanceMemTracker (or any
// ancestor) is over its limit. It deliberately does not report
// cancellation on its own, because callers overload CANCELLED to mean
// "limit reached during fetch".
func (rs *RuntimeState) CheckQueryState(processTracker *memtracker.Tracker) status.Status {
	if rs.instanceMemTracker != nil {
		if exceeded, tracker := rs.instanceMemTracker.AnyLimitExceeded(); exceeded {
			return rs.SetMemLimitExceeded(processTracker, tracker, 0)
		}
	}
	return rs.queryStatus.Get()
}

// UpdateStatus records s if it is the first non-OK status seen, per the
// sticky "first non-OK wins" rule.
func (rs *RuntimeState) UpdateStatus(s status.Status) {
	rs.queryStatus.Set(s)
}

// QueryStatus returns the current sticky status.
func (rs *RuntimeState) QueryStatus() status.Status {
	return rs.queryStatus.Get()
}

// Cancel sets the cancellation flag; idempotent.
func (rs *RuntimeState) Cancel() {
	rs.cancelOnce.Do(func() { close(rs.cancelled) })
}

// IsCancelled reports whether Cancel has been called. Operators poll this
// between batches (cooperative, best-effort cancellation).
func (rs *RuntimeState) IsCancelled() bool {
	select {
	case <-rs.cancelled:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when Cancel is called, for select-based
// polling in operator loops.
func (rs *RuntimeState) Done() <-chan struct{} {
	return rs.cancelled
}

// Close closes the object pool and then the codegen context, if any. It
// does not release or detach the instance, UDF or query mem trackers.
func (rs *RuntimeState) Close() {
	rs.objectPool.Close()
	if rs.codegen != nil {
		rs.codegen.Close()
	}
}
