package rprofile

// Merge sums src's counters into p where a counter of the same name exists
// on both, creating it on p (fresh, i.e. starting at src's value) if it
// doesn't, and preserves p's first-seen info strings (src's values for keys
// p already has are ignored). Child profiles are walked in insertion
// order: a child present on src but missing on p is created (via p's
// Arena); a child present only on p is left intact. Event sequences and
// time-series counters are left untouched, an explicit non-goal.
//
// Merge is commutative in the resulting values but is NOT safe to run
// concurrently in opposing directions on the same pair of trees — callers
// must serialize a.Merge(b) against b.Merge(a).
func (p *Profile) Merge(src *Profile) {
	p.counterMu.Lock()
	src.counterMu.Lock()
	for _, name := range src.counterOrder {
		sc := src.counters[name]
		if sc.kind == kindTimeSeries {
			continue
		}
		dc, ok := p.counters[name]
		if !ok {
			dc = cloneCounterZeroed(sc)
			p.counters[name] = dc
			p.counterOrder = append(p.counterOrder, name)
			if _, ok := p.childCounters[name]; !ok {
				p.childCounters[name] = map[string]bool{}
			}
		}
		if dc.kind == kindDerived || sc.kind == kindDerived {
			continue
		}
		dc.Set(dc.Value() + sc.Value())
	}
	// Merge the child-counter forest relationships.
	for parent, kids := range src.childCounters {
		if _, ok := p.childCounters[parent]; !ok {
			p.childCounters[parent] = map[string]bool{}
		}
		for k := range kids {
			p.childCounters[parent][k] = true
		}
	}
	src.counterMu.Unlock()
	p.counterMu.Unlock()

	p.infoMu.Lock()
	src.infoMu.Lock()
	for _, k := range src.infoKeys {
		if _, ok := p.infoMap[k]; !ok {
			p.infoKeys = append(p.infoKeys, k)
			p.infoMap[k] = src.infoMap[k]
		}
	}
	src.infoMu.Unlock()
	p.infoMu.Unlock()

	for _, srcChild := range src.Children() {
		dstChild := p.findChildByName(srcChild.name)
		if dstChild == nil {
			dstChild = p.arena.NewProfile(srcChild.name)
			p.AddChild(dstChild, true, nil)
		}
		dstChild.Merge(srcChild)
	}
}

// Update replaces p's counter values with src's incoming values (rather
// than summing) and overwrites info strings, following the same child-walk
// and non-goal rules as Merge.
func (p *Profile) Update(src *Profile) {
	p.counterMu.Lock()
	src.counterMu.Lock()
	for _, name := range src.counterOrder {
		sc := src.counters[name]
		if sc.kind == kindTimeSeries {
			continue
		}
		dc, ok := p.counters[name]
		if !ok {
			dc = cloneCounterZeroed(sc)
			p.counters[name] = dc
			p.counterOrder = append(p.counterOrder, name)
		}
		if dc.kind == kindDerived || sc.kind == kindDerived {
			continue
		}
		dc.Set(sc.Value())
	}
	for parent, kids := range src.childCounters {
		if _, ok := p.childCounters[parent]; !ok {
			p.childCounters[parent] = map[string]bool{}
		}
		for k := range kids {
			p.childCounters[parent][k] = true
		}
	}
	src.counterMu.Unlock()
	p.counterMu.Unlock()

	p.infoMu.Lock()
	src.infoMu.Lock()
	for _, k := range src.infoKeys {
		if _, ok := p.infoMap[k]; !ok {
			p.infoKeys = append(p.infoKeys, k)
		}
		p.infoMap[k] = src.infoMap[k]
	}
	src.infoMu.Unlock()
	p.infoMu.Unlock()

	for _, srcChild := range src.Children() {
		dstChild := p.findChildByName(srcChild.name)
		if dstChild == nil {
			dstChild = p.arena.NewProfile(srcChild.name)
			p.AddChild(dstChild, true, nil)
		}
		dstChild.Update(srcChild)
	}
}

func cloneCounterZeroed(src *Counter) *Counter {
	switch src.kind {
	case kindHighWaterMark:
		return newHWMCounter(src.name, src.typ)
	case kindDerived:
		return newDerivedCounter(src.name, src.typ, src.derive)
	default:
		return newPlainCounter(src.name, src.typ)
	}
}
