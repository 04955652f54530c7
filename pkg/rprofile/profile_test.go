package rprofile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddCounterIdempotent(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")

	c1 := p.AddCounter("rows", UNIT, "")
	c2 := p.AddCounter("rows", UNIT, "")
	require.Same(t, c1, c2)

	got, ok := p.GetCounter("rows")
	require.True(t, ok)
	require.Same(t, c1, got)
}

// S1 — Profile merge.
func TestMergeSumsCounters(t *testing.T) {
	arena1 := NewArena()
	p1 := arena1.NewProfile("root")
	a1 := p1.AddCounter("A", UNIT, "")
	a1.Add(10)
	b1 := p1.AddCounter("B", TIME_NS, "")
	b1.Add(int64(2 * 1e9))

	arena2 := NewArena()
	p2 := arena2.NewProfile("root")
	a2 := p2.AddCounter("A", UNIT, "")
	a2.Add(5)
	b2 := p2.AddCounter("B", TIME_NS, "")
	b2.Add(int64(1 * 1e9))
	c2 := p2.AddCounter("C", UNIT, "")
	c2.Add(7)

	p1.Merge(p2)

	a, _ := p1.GetCounter("A")
	require.EqualValues(t, 15, a.Value())
	b, _ := p1.GetCounter("B")
	require.EqualValues(t, 3*1e9, b.Value())
	c, _ := p1.GetCounter("C")
	require.EqualValues(t, 7, c.Value())
}

// S2 — HighWaterMark sequence.
func TestHighWaterMarkCounterSequence(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	c := p.AddHighWaterMarkCounter("mem", BYTES, "")

	c.Add(3)
	c.Add(2)
	c.Add(-4)
	c.Add(1)

	require.EqualValues(t, 2, c.Value())
	require.EqualValues(t, 5, c.Peak())
}

func TestDerivedCounterUnitsPerSecond(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	total := p.AddCounter("RowsRead", UNIT, "")
	total.Add(1000)
	timer := p.AddCounter("ScanTime", TIME_NS, "")
	timer.Add(int64(2 * 1e9))

	rate := p.AddDerivedCounter("RowsReadPerSec", UNIT, UnitsPerSecond(total, timer), "")
	require.EqualValues(t, 500, rate.Value())

	zeroTimer := p.AddCounter("ZeroTimer", TIME_NS, "")
	zeroRate := p.AddDerivedCounter("ZeroRate", UNIT, UnitsPerSecond(total, zeroTimer), "")
	require.EqualValues(t, 0, zeroRate.Value())
}

func TestChildCounterForestRootedAtEmptyString(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	p.AddCounter("Parent", UNIT, "")
	p.AddCounter("Child", UNIT, "Parent")

	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	require.Contains(t, p.childCounters[""], "Parent")
	require.Contains(t, p.childCounters["Parent"], "Child")
}

func TestAddChildAndPrettyPrint(t *testing.T) {
	arena := NewArena()
	root := arena.NewProfile("Fragment 0")
	scan := arena.NewProfile("ScanNode")
	root.AddChild(scan, true, nil)

	scan.AddCounter("RowsRead", UNIT, "").Add(42)
	root.AddInfoString("Host", "hostA:22000")

	out := root.String()
	require.Contains(t, out, "Fragment 0")
	require.Contains(t, out, "ScanNode")
	require.Contains(t, out, "RowsRead")
	require.Contains(t, out, "Host: hostA:22000")
}

func TestAddChildRejectsSelf(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	require.Panics(t, func() { p.AddChild(p, false, nil) })
}

// S6 — archive round-trip.
func TestSerializeArchiveRoundTrip(t *testing.T) {
	arena := NewArena()
	root := arena.NewProfile("root")
	root.AddInfoString("k1", "v1")

	child1 := arena.NewProfile("child1")
	child1.AddCounter("c1", UNIT, "").Add(1)
	child1.AddCounter("c2", BYTES, "").Add(2)
	child1.AddCounter("c3", TIME_NS, "").Add(3)
	child1.AddInfoString("ik", "iv")
	root.AddChild(child1, true, nil)

	child2 := arena.NewProfile("child2")
	child2.AddCounter("c1", UNIT, "").Add(10)
	child2.AddCounter("c2", BYTES, "").Add(20)
	child2.AddCounter("c3", TIME_NS, "").Add(30)
	root.AddChild(child2, false, nil)

	archive, err := root.SerializeToArchiveString()
	require.NoError(t, err)
	require.NotEmpty(t, archive)

	outArena := NewArena()
	decoded, err := DeserializeArchiveString(outArena, archive)
	require.NoError(t, err)

	require.Equal(t, root.name, decoded.name)
	require.Len(t, decoded.Children(), 2)

	decodedChild1 := decoded.Children()[0]
	require.Equal(t, "child1", decodedChild1.name)
	c1, ok := decodedChild1.GetCounter("c1")
	require.True(t, ok)
	require.EqualValues(t, 1, c1.Value())
	infos := decodedChild1.InfoStrings()
	require.Equal(t, []KV{{Key: "ik", Value: "iv"}}, infos)
}

func TestComputeTimeInProfile(t *testing.T) {
	arena := NewArena()
	root := arena.NewProfile("root")
	root.TotalTimeCounter().Add(int64(100))

	child := arena.NewProfile("child")
	child.TotalTimeCounter().Add(int64(40))
	root.AddChild(child, true, nil)

	root.ComputeTimeInProfile()

	local, ok := root.GetCounter("LocalTime")
	require.True(t, ok)
	require.EqualValues(t, 60, local.Value())

	childLocal, ok := child.GetCounter("LocalTime")
	require.True(t, ok)
	require.EqualValues(t, 40, childLocal.Value())
}

func TestDivide(t *testing.T) {
	arena := NewArena()
	p := arena.NewProfile("root")
	p.AddCounter("rows", UNIT, "").Add(100)
	p.Divide(4)
	c, _ := p.GetCounter("rows")
	require.EqualValues(t, 25, c.Value())
}
