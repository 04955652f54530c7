package rprofile

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/gob"
	"fmt"
)

// wireCounter/wireProfile are the schema-versioned, field-tagged records a
// compact binary serialized profile tree needs. gob provides a stable,
// self-describing binary encoding that this module controls end to end,
// wrapped in gzip + base64 for the archived profile format.
type wireEvent struct {
	Label   string
	SinceNS int64
}

type wireCounter struct {
	Name   string
	Type   Type
	Kind   kind
	Value  int64
	Peak   int64 // only meaningful for HighWaterMark
}

type wireProfile struct {
	Name          string
	Metadata      int64
	Counters      []wireCounter
	CounterOrder  []string
	ChildCounters map[string][]string
	InfoKeys      []string
	InfoMap       map[string]string
	EventSeqs     map[string][]wireEvent
	Children      []wireChild
}

type wireChild struct {
	Profile wireProfile
	Indent  bool
}

func (p *Profile) toWire() wireProfile {
	p.counterMu.Lock()
	wp := wireProfile{
		Name:          p.name,
		Metadata:      p.metadata,
		ChildCounters: map[string][]string{},
	}
	for parent, kids := range p.childCounters {
		list := make([]string, 0, len(kids))
		for k := range kids {
			list = append(list, k)
		}
		wp.ChildCounters[parent] = list
	}
	for _, name := range p.counterOrder {
		c := p.counters[name]
		if c.kind == kindTimeSeries {
			continue // time-series counters are not archived (non-goal)
		}
		wp.CounterOrder = append(wp.CounterOrder, name)
		wp.Counters = append(wp.Counters, wireCounter{
			Name:  c.name,
			Type:  c.typ,
			Kind:  c.kind,
			Value: c.Value(),
			Peak:  c.Peak(),
		})
	}
	p.counterMu.Unlock()

	for _, kv := range p.InfoStrings() {
		wp.InfoKeys = append(wp.InfoKeys, kv.Key)
	}
	wp.InfoMap = map[string]string{}
	for _, kv := range p.InfoStrings() {
		wp.InfoMap[kv.Key] = kv.Value
	}

	wp.EventSeqs = map[string][]wireEvent{}
	for name, es := range p.eventSequences() {
		var list []wireEvent
		for _, ev := range es.Events() {
			list = append(list, wireEvent{Label: ev.Label, SinceNS: ev.SinceNS})
		}
		wp.EventSeqs[name] = list
	}

	p.childMu.Lock()
	for _, e := range p.children {
		wp.Children = append(wp.Children, wireChild{Profile: e.child.toWire(), Indent: e.indent})
	}
	p.childMu.Unlock()

	return wp
}

func fromWire(arena *Arena, wp wireProfile) *Profile {
	p := arena.NewProfile(wp.Name)
	p.metadata = wp.Metadata

	// Replace the zero-value TotalTime placeholder entirely; the wire form
	// is authoritative.
	p.counterMu.Lock()
	p.counters = map[string]*Counter{}
	p.counterOrder = nil
	for _, wc := range wp.Counters {
		var c *Counter
		switch wc.Kind {
		case kindHighWaterMark:
			c = newHWMCounter(wc.Name, wc.Type)
			c.Set(wc.Value)
			c.peak.Store(wc.Peak)
		case kindDerived:
			// Derived counters cannot cross the wire (no function
			// pointers); reconstruct as a frozen plain counter holding
			// the last computed value.
			c = newPlainCounter(wc.Name, wc.Type)
			c.Set(wc.Value)
		default:
			c = newPlainCounter(wc.Name, wc.Type)
			c.Set(wc.Value)
		}
		p.counters[wc.Name] = c
	}
	p.counterOrder = append(p.counterOrder, wp.CounterOrder...)
	p.childCounters = map[string]map[string]bool{}
	for parent, kids := range wp.ChildCounters {
		set := map[string]bool{}
		for _, k := range kids {
			set[k] = true
		}
		p.childCounters[parent] = set
	}
	if tt, ok := p.counters["TotalTime"]; ok {
		p.totalTime = tt
	}
	p.counterMu.Unlock()

	for _, k := range wp.InfoKeys {
		p.AddInfoString(k, wp.InfoMap[k])
	}

	for name, events := range wp.EventSeqs {
		es := p.AddEventSequence(name)
		for _, ev := range events {
			es.mu.Lock()
			es.marks = append(es.marks, Event{Label: ev.Label, SinceNS: ev.SinceNS})
			es.mu.Unlock()
		}
	}

	for _, wc := range wp.Children {
		child := fromWire(arena, wc.Profile)
		p.AddChild(child, wc.Indent, nil)
	}

	return p
}

// SerializeToArchiveString encodes p as gob (compact binary tree) ->
// gzip -> base64, the archived profile format this module writes and reads.
// Round-trip through DeserializeArchiveString is lossless for counters,
// info-strings, child tree, and event sequences; time-series counters are
// included in neither direction, since they are per-node sampling state
// that is never merged or archived across nodes.
func (p *Profile) SerializeToArchiveString() (string, error) {
	var gobBuf bytes.Buffer
	if err := gob.NewEncoder(&gobBuf).Encode(p.toWire()); err != nil {
		return "", fmt.Errorf("rprofile: gob encode: %w", err)
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(gobBuf.Bytes()); err != nil {
		return "", fmt.Errorf("rprofile: gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("rprofile: gzip close: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gz.Bytes()), nil
}

// DeserializeArchiveString is SerializeToArchiveString's inverse, allocating
// the result's nodes from arena.
func DeserializeArchiveString(arena *Arena, s string) (*Profile, error) {
	gzBytes, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("rprofile: base64 decode: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(gzBytes))
	if err != nil {
		return nil, fmt.Errorf("rprofile: gzip reader: %w", err)
	}
	defer zr.Close()

	var wp wireProfile
	if err := gob.NewDecoder(zr).Decode(&wp); err != nil {
		return nil, fmt.Errorf("rprofile: gob decode: %w", err)
	}

	return fromWire(arena, wp), nil
}
