// Package scheduler implements the cluster-wide scheduler that tracks
// live backends from a membership feed and assigns scan ranges to them
// with locality awareness and round-robin fallback.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/impala-query/fragment-runtime/pkg/membership"
	"github.com/impala-query/fragment-runtime/pkg/scheduler/backend"
	"github.com/impala-query/fragment-runtime/pkg/services"
)

// Scheduler tracks the cluster's live backends and computes scan-range
// assignments and fragment placement for incoming queries.
type Scheduler struct {
	*services.BasicService

	coordinator backend.Descriptor

	mu           sync.Mutex
	backendMap   map[string][]backend.Descriptor // host -> backends on that host
	backendIPMap map[string]string               // host -> ip
	allBackends  []backend.Descriptor            // stable order for global round-robin

	globalRRIdx int
	perHostRR   map[string]int

	totalAssignments      prometheus.Counter
	totalLocalAssignments prometheus.Counter

	sub *membership.Subscriber
}

// New constructs a Scheduler with no backends yet known. Use
// NewStatic for the fixed-list construction mode, or call Subscribe to
// enter dynamic mode.
func New(coordinator backend.Descriptor, reg prometheus.Registerer) *Scheduler {
	s := &Scheduler{
		coordinator:  coordinator,
		backendMap:   map[string][]backend.Descriptor{},
		backendIPMap: map[string]string{},
		perHostRR:    map[string]int{},
		totalAssignments: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "impala_scheduler_total_assignments",
			Help: "Total number of scan range assignments made by the scheduler.",
		}),
		totalLocalAssignments: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "impala_scheduler_total_local_assignments",
			Help: "Total number of scan range assignments that landed on a data-local host.",
		}),
	}
	s.BasicService = services.NewBasicService(nil, nil)
	return s
}

// NewStatic constructs a Scheduler fixed to backends, the static
// construction mode used when no membership feed is available.
func NewStatic(coordinator backend.Descriptor, backends []backend.Descriptor, reg prometheus.Registerer) *Scheduler {
	s := New(coordinator, reg)
	s.applyFullSet(backends)
	return s
}

// Subscribe enters dynamic construction mode: backends are rebuilt from
// membership deltas delivered by sub until ctx is cancelled. Run this in
// its own goroutine.
func (s *Scheduler) Subscribe(ctx context.Context, sub *membership.Subscriber) {
	s.sub = sub
	sub.Run(ctx, s.applyDelta)
}

// applyDelta incorporates one membership.Delta and resets round-robin
// state, so a stale round-robin index never points past the end of a
// shrunk backend list.
func (s *Scheduler) applyDelta(d membership.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, desc := range d.Added {
		desc.ID = id
		s.backendMap[desc.Host] = append(s.backendMap[desc.Host], desc)
		s.backendIPMap[desc.Host] = desc.IP
	}
	if len(d.Removed) > 0 {
		removed := make(map[string]bool, len(d.Removed))
		for _, id := range d.Removed {
			removed[id] = true
		}
		for host, descs := range s.backendMap {
			kept := descs[:0]
			for _, desc := range descs {
				if !removed[desc.ID] {
					kept = append(kept, desc)
				}
			}
			if len(kept) == 0 {
				delete(s.backendMap, host)
				delete(s.backendIPMap, host)
			} else {
				s.backendMap[host] = kept
			}
		}
	}

	s.rebuildAllBackendsLocked()
	s.resetRoundRobinLocked()
}

func (s *Scheduler) applyFullSet(backends []backend.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendMap = map[string][]backend.Descriptor{}
	s.backendIPMap = map[string]string{}
	for _, desc := range backends {
		s.backendMap[desc.Host] = append(s.backendMap[desc.Host], desc)
		s.backendIPMap[desc.Host] = desc.IP
	}
	s.rebuildAllBackendsLocked()
	s.resetRoundRobinLocked()
}

func (s *Scheduler) rebuildAllBackendsLocked() {
	s.allBackends = s.allBackends[:0]
	for _, descs := range s.backendMap {
		s.allBackends = append(s.allBackends, descs...)
	}
	sort.Slice(s.allBackends, func(i, j int) bool {
		a, b := s.allBackends[i], s.allBackends[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Address() < b.Address()
	})
}

func (s *Scheduler) resetRoundRobinLocked() {
	s.globalRRIdx = 0
	s.perHostRR = map[string]int{}
}

// KnownBackends returns a snapshot of every backend currently tracked.
func (s *Scheduler) KnownBackends() []backend.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Descriptor, len(s.allBackends))
	copy(out, s.allBackends)
	return out
}
