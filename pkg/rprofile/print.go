package rprofile

import (
	"fmt"
	"io"
	"strings"
)

// PrettyPrint renders the tree prefix-indented, counters grouped under
// their parent counter label, info strings in registration order, and
// event sequences with cumulative and delta times.
func (p *Profile) PrettyPrint(w io.Writer, prefix string) {
	fmt.Fprintf(w, "%s%s:\n", prefix, p.name)
	p.printCounters(w, prefix+"  ", "")
	for _, kv := range p.InfoStrings() {
		fmt.Fprintf(w, "%s  %s: %s\n", prefix, kv.Key, kv.Value)
	}
	for name, es := range p.eventSequences() {
		fmt.Fprintf(w, "%s  Events: %s\n", prefix, name)
		var prev int64
		for _, ev := range es.Events() {
			fmt.Fprintf(w, "%s    %s at %dns (+%dns)\n", prefix, ev.Label, ev.SinceNS, ev.SinceNS-prev)
			prev = ev.SinceNS
		}
	}
	childPrefix := prefix
	for _, c := range p.Children() {
		indent := false
		p.childMu.Lock()
		for _, e := range p.children {
			if e.child == c {
				indent = e.indent
				break
			}
		}
		p.childMu.Unlock()
		if indent {
			c.PrettyPrint(w, childPrefix+"  ")
		} else {
			c.PrettyPrint(w, childPrefix)
		}
	}
}

func (p *Profile) printCounters(w io.Writer, prefix string, parent string) {
	p.counterMu.Lock()
	kids := make([]string, 0, len(p.childCounters[parent]))
	for name := range p.childCounters[parent] {
		kids = append(kids, name)
	}
	order := make(map[string]int, len(p.counterOrder))
	for i, n := range p.counterOrder {
		order[n] = i
	}
	p.counterMu.Unlock()

	// Render in counter-registration order for determinism.
	sortByOrder(kids, order)

	for _, name := range kids {
		c, ok := p.GetCounter(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s%s: %d (%s)\n", prefix, name, c.Value(), c.typ)
		p.printCounters(w, prefix+"  ", name)
	}
}

func sortByOrder(names []string, order map[string]int) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && order[names[j-1]] > order[names[j]]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}

// String returns the PrettyPrint rendering as a string.
func (p *Profile) String() string {
	var sb strings.Builder
	p.PrettyPrint(&sb, "")
	return sb.String()
}
