// Package status models the runtime's error kinds as a small closed set
// of explicit result values instead of exception-for-control-flow.
package status

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
)

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Code is the closed set of error kinds a fragment, a query, or an RPC can
// terminate with.
type Code int

const (
	OK Code = iota
	Cancelled
	MemLimitExceeded
	Transport
	Internal
	UserError
	PermissionDenied
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "CANCELLED"
	case MemLimitExceeded:
		return "MEM_LIMIT_EXCEEDED"
	case Transport:
		return "TRANSPORT"
	case Internal:
		return "INTERNAL"
	case UserError:
		return "USER_ERROR"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	default:
		return "UNKNOWN"
	}
}

// Status is a value-typed result: a code plus an optional message.
type Status struct {
	code Code
	msg  string
}

// Ok is the zero value and reports no error.
var Ok = Status{code: OK}

// New constructs a non-OK status. Passing OK with a non-empty message is
// allowed but discouraged; callers that want a guaranteed-ok value should
// use Ok directly.
func New(code Code, format string, args ...interface{}) Status {
	return Status{code: code, msg: fmt.Sprintf(format, args...)}
}

func (s Status) Code() Code { return s.code }
func (s Status) Ok() bool   { return s.code == OK }
func (s Status) Message() string {
	return s.msg
}

func (s Status) Error() string {
	if s.Ok() {
		return "OK"
	}
	if s.msg == "" {
		return s.code.String()
	}
	return fmt.Sprintf("%s: %s", s.code, s.msg)
}

// gobStatus is Status's exported shadow, used only by GobEncode/GobDecode
// since gob cannot see unexported fields directly.
type gobStatus struct {
	Code    Code
	Message string
}

// GobEncode lets Status cross the gob-encoded RPC boundary (pkg/rpcclient)
// despite its fields being unexported.
func (s Status) GobEncode() ([]byte, error) {
	return gobEncode(gobStatus{Code: s.code, Message: s.msg})
}

// GobDecode is GobEncode's inverse.
func (s *Status) GobDecode(data []byte) error {
	var g gobStatus
	if err := gobDecode(data, &g); err != nil {
		return err
	}
	s.code = g.Code
	s.msg = g.Message
	return nil
}

// CancelReason discriminates the overloaded meaning of a Cancelled status:
// callers treat CANCELLED as meaning either a user/system-initiated
// cancellation or "memory limit reached during fetch". Callers that need
// to tell these apart use Reason instead of re-deriving it from the mem
// tracker.
type CancelReason int

const (
	CancelNone CancelReason = iota
	CancelUser
	CancelLimit
	CancelSystem
)

// reasonKey is not referenced anywhere; the cancellation reason is carried
// in ReasonedStatus.Reason.
type reasonKey struct{}

// ReasonedStatus is a status annotated inline with a CancelReason. Its
// Code is Cancelled, so code that only checks Code() treats it like any
// other cancellation.
type ReasonedStatus struct {
	Status
	Reason CancelReason
}

// CancelledWithReason returns a Cancelled status annotated with reason.
func CancelledWithReason(reason CancelReason, format string, args ...interface{}) ReasonedStatus {
	return ReasonedStatus{
		Status: New(Cancelled, format, args...),
		Reason: reason,
	}
}

// Cell is a single-assignment, thread-safe status cell: the first non-OK
// Set wins and subsequent Sets are ignored.
type Cell struct {
	mu  sync.Mutex
	set bool
	s   Status
}

// NewCell returns a Cell initialized to Ok.
func NewCell() *Cell {
	return &Cell{}
}

// Set records s iff the cell has not already recorded a non-OK status.
// It returns true if this call was the one that won (i.e. the cell was
// previously OK and s is non-OK), matching UpdateStatus's "first non-OK
// wins" semantics.
func (c *Cell) Set(s Status) bool {
	if s.Ok() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return false
	}
	c.set = true
	c.s = s
	return true
}

// Get returns the currently recorded status, or Ok if none was ever set.
func (c *Cell) Get() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return Ok
	}
	return c.s
}
