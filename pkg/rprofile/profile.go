// Package rprofile implements a hierarchical,
// thread-safe counter/timer/event-sequence tree that every fragment
// instance, and the coordinator aggregating them, builds and serializes.
//
// Nodes are allocated from an Arena, which keeps every Profile it creates;
// a node's children are held as *Profile pointers, not arena indices.
// AddChild refuses a node as its own child and ignores a child already in
// the list; it does not check ancestors, so attaching an ancestor of p
// under p creates a cycle.
package rprofile

import (
	"sort"
	"sync"
	"time"
)

// Arena owns every Profile allocated from it. A Profile's life is bounded
// by its Arena; dropping the Arena drops every node in it.
type Arena struct {
	mu    sync.Mutex
	nodes []*Profile
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewProfile allocates a fresh, childless Profile named name.
func (a *Arena) NewProfile(name string) *Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &Profile{
		arena:         a,
		idx:           len(a.nodes),
		name:          name,
		counters:      make(map[string]*Counter),
		childCounters: map[string]map[string]bool{"": {}},
		infoMap:       make(map[string]string),
		eventSeqs:     make(map[string]*EventSequence),
		createdAt:     time.Now(),
	}
	p.totalTime = newPlainCounter("TotalTime", TIME_NS)
	p.counters[p.totalTime.name] = p.totalTime
	p.counterOrder = append(p.counterOrder, p.totalTime.name)
	p.childCounters[""][p.totalTime.name] = true

	a.nodes = append(a.nodes, p)
	return p
}

type childEntry struct {
	child  *Profile
	indent bool
}

// Profile is one node in the tree. The counter map and child-counter map
// share counterMu; info strings, child list, event sequences and bucketing
// registrations each have their own lock. A derived counter's function can
// run while counterMu is held (archiving reads every counter's value under
// it).
type Profile struct {
	arena *Arena
	idx   int

	name     string
	metadata int64

	counterMu     sync.Mutex
	counters      map[string]*Counter
	counterOrder  []string            // insertion order, for PrettyPrint
	childCounters map[string]map[string]bool // parent counter name -> child counter names, "" is the root

	totalTime *Counter

	infoMu   sync.Mutex
	infoKeys []string
	infoMap  map[string]string

	childMu  sync.Mutex
	children []childEntry

	eventMu   sync.Mutex
	eventSeqs map[string]*EventSequence

	bucketMu    sync.Mutex
	bucketings  []*BucketingCounter

	createdAt time.Time
}

func (p *Profile) Name() string { return p.name }

func (p *Profile) SetMetadata(md int64) { p.metadata = md }
func (p *Profile) Metadata() int64      { return p.metadata }

func (p *Profile) TotalTimeCounter() *Counter { return p.totalTime }

// AddCounter registers a new counter under parent ("" = top-level).
// Calling AddCounter twice with the same name returns the existing
// counter; type is not re-checked on the second call.
func (p *Profile) AddCounter(name string, typ Type, parent string) *Counter {
	return p.addCounter(parent, func() *Counter { return newPlainCounter(name, typ) })
}

func (p *Profile) AddHighWaterMarkCounter(name string, typ Type, parent string) *Counter {
	return p.addCounter(parent, func() *Counter { return newHWMCounter(name, typ) })
}

func (p *Profile) AddDerivedCounter(name string, typ Type, fn func() int64, parent string) *Counter {
	return p.addCounter(parent, func() *Counter { return newDerivedCounter(name, typ, fn) })
}

// AddTimeSeriesCounter registers a time-series counter. capacity bounds the
// ring buffer; periodMs is stored as its sampling period. Nothing in this
// package records samples into it: PeriodicCounterUpdater has no
// time-series registration, so the buffer stays empty.
func (p *Profile) AddTimeSeriesCounter(name string, typ Type, capacity int, periodMs int) *Counter {
	return p.addCounter("", func() *Counter { return newTimeSeriesCounter(name, typ, capacity, periodMs) })
}

func (p *Profile) addCounter(parent string, create func() *Counter) *Counter {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()

	probe := create()
	if existing, ok := p.counters[probe.name]; ok {
		return existing
	}

	p.counters[probe.name] = probe
	p.counterOrder = append(p.counterOrder, probe.name)
	if _, ok := p.childCounters[parent]; !ok {
		p.childCounters[parent] = map[string]bool{}
	}
	p.childCounters[parent][probe.name] = true
	if _, ok := p.childCounters[probe.name]; !ok {
		p.childCounters[probe.name] = map[string]bool{}
	}
	return probe
}

// GetCounter returns the counter registered under name, if any.
func (p *Profile) GetCounter(name string) (*Counter, bool) {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	c, ok := p.counters[name]
	return c, ok
}

// ThreadCounters groups the per-thread counters AddThreadCounters
// registers under a common prefix: user/system time and context-switch
// counts for one execution thread.
type ThreadCounters struct {
	TotalTime          *Counter
	UserTime           *Counter
	SysTime            *Counter
	VoluntarySwitches  *Counter
	InvoluntarySwitches *Counter
}

// AddThreadCounters registers the standard thread-accounting counter set
// under a "prefixThreadTotalWallClockTime" parent, for one exec-node
// thread.
func (p *Profile) AddThreadCounters(prefix string) *ThreadCounters {
	parent := prefix + "ThreadTotalWallClockTime"
	total := p.AddCounter(parent, TIME_NS, "")
	return &ThreadCounters{
		TotalTime:           total,
		UserTime:            p.AddCounter(prefix+"ThreadUserTime", TIME_NS, parent),
		SysTime:             p.AddCounter(prefix+"ThreadSysTime", TIME_NS, parent),
		VoluntarySwitches:   p.AddCounter(prefix+"ThreadVoluntaryContextSwitches", UNIT, parent),
		InvoluntarySwitches: p.AddCounter(prefix+"ThreadInvoluntaryContextSwitches", UNIT, parent),
	}
}

// AddInfoString adds or overwrites key's value, preserving first-seen
// insertion order for display.
func (p *Profile) AddInfoString(key, value string) {
	p.infoMu.Lock()
	defer p.infoMu.Unlock()
	if _, ok := p.infoMap[key]; !ok {
		p.infoKeys = append(p.infoKeys, key)
	}
	p.infoMap[key] = value
}

// InfoStrings returns the info-string map entries in insertion order.
func (p *Profile) InfoStrings() []KV {
	p.infoMu.Lock()
	defer p.infoMu.Unlock()
	out := make([]KV, 0, len(p.infoKeys))
	for _, k := range p.infoKeys {
		out = append(out, KV{Key: k, Value: p.infoMap[k]})
	}
	return out
}

// KV is an ordered key/value pair, used for info strings.
type KV struct {
	Key, Value string
}

// AddChild attaches child to p's child list. indent controls whether
// PrettyPrint indents the child's subtree. If after is non-nil, child is
// inserted immediately following it; otherwise child is appended.
//
// AddChild rejects attaching a node that is already p itself or already
// present in p's child list, which together with single-parent attachment
// (a node is only ever appended to one parent's list in this module) is
// what prevents cycles by construction.
func (p *Profile) AddChild(child *Profile, indent bool, after *Profile) {
	if child == p {
		panic("rprofile: a profile cannot be its own child")
	}
	p.childMu.Lock()
	defer p.childMu.Unlock()

	for _, e := range p.children {
		if e.child == child {
			return
		}
	}

	entry := childEntry{child: child, indent: indent}
	if after == nil {
		p.children = append(p.children, entry)
		return
	}
	for i, e := range p.children {
		if e.child == after {
			p.children = append(p.children[:i+1], append([]childEntry{entry}, p.children[i+1:]...)...)
			return
		}
	}
	p.children = append(p.children, entry)
}

// Children returns the ordered child list.
func (p *Profile) Children() []*Profile {
	p.childMu.Lock()
	defer p.childMu.Unlock()
	out := make([]*Profile, len(p.children))
	for i, e := range p.children {
		out[i] = e.child
	}
	return out
}

func (p *Profile) findChildByName(name string) *Profile {
	p.childMu.Lock()
	defer p.childMu.Unlock()
	for _, e := range p.children {
		if e.child.name == name {
			return e.child
		}
	}
	return nil
}

// AddEventSequence returns the named EventSequence, creating it if absent.
// Event sequences are single-threaded: callers must not call MarkEvent on
// the same sequence from more than one goroutine concurrently.
func (p *Profile) AddEventSequence(key string) *EventSequence {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	if es, ok := p.eventSeqs[key]; ok {
		return es
	}
	es := newEventSequence(p.createdAt)
	p.eventSeqs[key] = es
	return es
}

func (p *Profile) eventSequences() map[string]*EventSequence {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	out := make(map[string]*EventSequence, len(p.eventSeqs))
	for k, v := range p.eventSeqs {
		out[k] = v
	}
	return out
}

// EventSequence is an ordered (label, ns_since_start) list.
type EventSequence struct {
	start time.Time
	mu    sync.Mutex
	marks []Event
}

// Event is one (label, elapsed) pair within an EventSequence.
type Event struct {
	Label     string
	SinceNS int64
}

func newEventSequence(start time.Time) *EventSequence {
	return &EventSequence{start: start}
}

// MarkEvent records label at the current time, relative to the sequence's
// creation.
func (es *EventSequence) MarkEvent(label string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.marks = append(es.marks, Event{Label: label, SinceNS: time.Since(es.start).Nanoseconds()})
}

// Events returns the recorded events in order.
func (es *EventSequence) Events() []Event {
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make([]Event, len(es.marks))
	copy(out, es.marks)
	return out
}

// Divide divides every plain/HWM counter's value by n, used by the
// coordinator when averaging counters across fragment instances.
func (p *Profile) Divide(n int64) {
	if n == 0 {
		return
	}
	p.counterMu.Lock()
	for _, name := range p.counterOrder {
		c := p.counters[name]
		if c.kind == kindDerived || c.kind == kindTimeSeries {
			continue
		}
		c.Set(c.Value() / n)
	}
	p.counterMu.Unlock()

	for _, child := range p.Children() {
		child.Divide(n)
	}
}

// SortChildren reorders the child list in place using less.
func (p *Profile) SortChildren(less func(a, b *Profile) bool) {
	p.childMu.Lock()
	defer p.childMu.Unlock()
	sort.SliceStable(p.children, func(i, j int) bool {
		return less(p.children[i].child, p.children[j].child)
	})
}

// ComputeTimeInProfile walks the tree top-down computing, for every node,
// local = total - sum(children.total) and
// local_pct = local/root.total * 100.
// It registers "LocalTime" and "LocalTimePercent" derived counters on each
// node so PrettyPrint can render them.
func (p *Profile) ComputeTimeInProfile() {
	root := p.totalTime.Value()
	p.computeTimeInProfile(root)
}

func (p *Profile) computeTimeInProfile(rootTotal int64) {
	var childSum int64
	for _, c := range p.Children() {
		childSum += c.totalTime.Value()
	}
	local := p.totalTime.Value() - childSum
	if local < 0 {
		local = 0
	}
	localCounter := p.AddCounter("LocalTime", TIME_NS, "")
	localCounter.Set(local)

	var pct float64
	if rootTotal > 0 {
		pct = float64(local) / float64(rootTotal) * 100
	}
	pctCounter := p.AddDerivedCounter("LocalTimePercent", DOUBLE, func() int64 { return int64(pct) }, "")
	_ = pctCounter

	for _, c := range p.Children() {
		c.computeTimeInProfile(rootTotal)
	}
}
