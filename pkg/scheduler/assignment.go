package scheduler

import (
	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
)

// Assignment is one host's share of scan ranges for a single fragment,
// the intermediate result ComputeScanRangeAssignment produces and
// ComputeFragmentHosts reduces to a list of distinct hosts.
type Assignment struct {
	Host   string
	Ranges []backend.ScanRangeLocation
}

// ComputeScanRangeAssignment assigns hosts to scan ranges: for each scan
// range of a scan node, gather its candidate hosts, intersect with known
// backends, and either record a local assignment on one of them (advancing
// that host's round-robin pointer) or fall back to the next backend in the
// global round-robin (a non-local assignment). If pinnedToCoordinator,
// every range is assigned to the coordinator host instead.
func (s *Scheduler) ComputeScanRangeAssignment(pinnedToCoordinator bool, ranges []backend.ScanRangeLocation) []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	byHost := map[string][]backend.ScanRangeLocation{}
	var order []string

	appendTo := func(host string, r backend.ScanRangeLocation) {
		if _, ok := byHost[host]; !ok {
			order = append(order, host)
		}
		byHost[host] = append(byHost[host], r)
	}

	for _, r := range ranges {
		if pinnedToCoordinator {
			appendTo(s.coordinator.Host, r)
			continue
		}

		host, local := s.pickHostLocked(r.Hosts)
		appendTo(host, r)

		s.totalAssignments.Inc()
		if local {
			s.totalLocalAssignments.Inc()
		}
	}

	out := make([]Assignment, 0, len(order))
	for _, host := range order {
		out = append(out, Assignment{Host: host, Ranges: byHost[host]})
	}
	return out
}

// pickHostLocked chooses the backend for one scan range: a locality-
// preferred host if any of candidateHosts is known, round-robin among
// those candidates; otherwise the next backend from the global
// round-robin. Caller holds s.mu.
func (s *Scheduler) pickHostLocked(candidateHosts []string) (host string, local bool) {
	var known []string
	for _, h := range candidateHosts {
		if _, ok := s.backendMap[h]; ok {
			known = append(known, h)
		}
	}

	if len(known) > 0 {
		idx := s.perHostRR[known[0]] % len(known)
		s.perHostRR[known[0]]++
		return known[idx], true
	}

	if len(s.allBackends) == 0 {
		return s.coordinator.Host, false
	}
	picked := s.allBackends[s.globalRRIdx%len(s.allBackends)]
	s.globalRRIdx++
	return picked.Host, false
}

// ComputeFragmentHosts computes a fragment's hosts as the union of
// scan-range hosts assigned to it. A fragment with no scan source (no
// assignments produced) runs on the coordinator alone.
func (s *Scheduler) ComputeFragmentHosts(assignments []Assignment) []string {
	if len(assignments) == 0 {
		return []string{s.coordinator.Host}
	}
	seen := map[string]bool{}
	var hosts []string
	for _, a := range assignments {
		if !seen[a.Host] {
			seen[a.Host] = true
			hosts = append(hosts, a.Host)
		}
	}
	return hosts
}
