// Package memtracker implements the hierarchical memory accounting node:
// children consume against ancestors atomically, bounded by an optional
// hard limit per tracker. A soft limit can be recorded, but no method
// consults it.
package memtracker

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/impala-query/fragment-runtime/pkg/rprofile"
)

// Tracker is one node in the hierarchy; consumption is tracked locally and
// propagated to every ancestor on Consume/Release.
type Tracker struct {
	label string

	mu          sync.Mutex
	consumption int64
	peak        int64

	softLimit int64 // 0 means unlimited
	hardLimit int64 // 0 means unlimited

	parent   *Tracker
	children []*Tracker

	// consumption is mirrored onto a profile HWM counter when one is
	// supplied.
	counter *rprofile.Counter
}

// NewRootTracker returns an unparented tracker, typically the process-wide
// root ("process-wide MemTracker root").
func NewRootTracker(label string, hardLimit int64) *Tracker {
	return newTracker(label, hardLimit, nil, nil)
}

// NewChild returns a tracker that consumes against t (and transitively
// every ancestor of t) in addition to its own limit.
func (t *Tracker) NewChild(label string, hardLimit int64) *Tracker {
	child := newTracker(label, hardLimit, t, nil)
	t.mu.Lock()
	t.children = append(t.children, child)
	t.mu.Unlock()
	return child
}

// NewChildWithCounter is NewChild, additionally mirroring consumption onto
// a HighWaterMark counter on profile — the binding RuntimeState uses for
// QueryMemTracker/InstanceMemTracker so the profile shows peak usage.
func (t *Tracker) NewChildWithCounter(label string, hardLimit int64, profile *rprofile.Profile) *Tracker {
	counter := profile.AddHighWaterMarkCounter("PeakMemoryUsage", rprofile.BYTES, "")
	child := newTracker(label, hardLimit, t, counter)
	t.mu.Lock()
	t.children = append(t.children, child)
	t.mu.Unlock()
	return child
}

func newTracker(label string, hardLimit int64, parent *Tracker, counter *rprofile.Counter) *Tracker {
	return &Tracker{label: label, hardLimit: hardLimit, parent: parent, counter: counter}
}

func (t *Tracker) Label() string { return t.label }

// Limit returns the hard limit, 0 meaning unlimited.
func (t *Tracker) Limit() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hardLimit
}

// SetSoftLimit records a soft limit. No method of Tracker reads it:
// TryConsume enforces hard limits only, and reports nothing when a soft
// limit is crossed.
func (t *Tracker) SetSoftLimit(limit int64) {
	t.mu.Lock()
	t.softLimit = limit
	t.mu.Unlock()
}

// Consumption returns the current local consumption.
func (t *Tracker) Consumption() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumption
}

// Peak returns the high-water mark of local consumption.
func (t *Tracker) Peak() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Consume unconditionally adds bytes to this tracker and every ancestor,
// ignoring limits. Used when the caller has already checked TryConsume
// elsewhere, or for accounting that must never fail.
func (t *Tracker) Consume(bytes int64) {
	for n := t; n != nil; n = n.parent {
		n.mu.Lock()
		n.consumption += bytes
		if n.consumption > n.peak {
			n.peak = n.consumption
		}
		cur := n.consumption
		n.mu.Unlock()
		if n.counter != nil {
			n.counter.Set(cur)
		}
	}
}

// Release subtracts bytes from this tracker and every ancestor.
func (t *Tracker) Release(bytes int64) {
	t.Consume(-bytes)
}

// TryConsume attempts to consume bytes without pushing this tracker or any
// ancestor over its hard limit. On failure no tracker in the chain is
// modified (all-or-nothing), and the tracker whose limit would be exceeded
// is returned.
func (t *Tracker) TryConsume(bytes int64) (ok bool, exceeded *Tracker) {
	// Walk to the root checking limits first, so a rejection never leaves
	// a partial update.
	for n := t; n != nil; n = n.parent {
		n.mu.Lock()
		would := n.consumption + bytes
		limit := n.hardLimit
		n.mu.Unlock()
		if limit > 0 && would > limit {
			return false, n
		}
	}
	t.Consume(bytes)
	return true, nil
}

// LogUsage renders this tracker's usage, and recursively its children's,
// indented by prefix.
func (t *Tracker) LogUsage(prefix string) string {
	t.mu.Lock()
	limit := "no limit"
	if t.hardLimit > 0 {
		limit = humanize.IBytes(uint64(t.hardLimit))
	}
	out := fmt.Sprintf("%s%s Consumption=%s Limit=%s Peak=%s",
		prefix, t.label, humanize.IBytes(uint64(max64(t.consumption, 0))), limit, humanize.IBytes(uint64(max64(t.peak, 0))))
	children := append([]*Tracker(nil), t.children...)
	t.mu.Unlock()

	for _, c := range children {
		out += "\n" + c.LogUsage(prefix+"  ")
	}
	return out
}

// AnyLimitExceeded reports whether this tracker or any ancestor currently
// exceeds its hard limit, and which one if so.
func (t *Tracker) AnyLimitExceeded() (ok bool, exceeded *Tracker) {
	for n := t; n != nil; n = n.parent {
		n.mu.Lock()
		over := n.hardLimit > 0 && n.consumption > n.hardLimit
		n.mu.Unlock()
		if over {
			return true, n
		}
	}
	return false, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
