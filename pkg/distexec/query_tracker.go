package distexec

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

// DefaultResultTTL bounds how long a finished fragment's result stays
// retrievable before CleanExpired reclaims it.
const DefaultResultTTL = 1 * time.Minute

// FragmentStatus is the lifecycle of one fragment instance's result as
// tracked by the coordinator side, independent of FragmentExecState's own
// finer-grained Phase.
type FragmentStatus string

const (
	StatusWriting FragmentStatus = "writing"
	StatusDone    FragmentStatus = "done"
	StatusError   FragmentStatus = "error"
)

// FragmentResult holds whatever result payload a fragment instance produced
// (row batch handoff for exchange senders, or nil for sink fragments) plus
// its status and expiration.
type FragmentResult struct {
	Data       interface{}
	Status     FragmentStatus
	Expiration time.Time
}

// QueryTracker is the coordinator-side cache of fragment-instance results,
// keyed by FragmentKey rather than a plain fragment ordinal since a query
// may run many instances of the same fragment across backends. A query
// frequently fans out to dozens of fragment instances, so entries also sit
// in a per-query index, which ClearQuery (called once a query's
// coordinator reports it done or cancelled) uses to reach a single query's
// fragments without walking the whole cache. Reads look up their one key
// directly, and CleanExpired walks the whole cache.
type QueryTracker struct {
	mu  sync.RWMutex
	ttl time.Duration

	cache      map[FragmentKey]FragmentResult
	byQueryIdx map[uniqueid.ID]map[FragmentKey]struct{}

	tracked prometheus.Gauge
	expired prometheus.Counter
}

// NewQueryTracker returns a QueryTracker whose entries expire after ttl. A
// zero ttl uses DefaultResultTTL.
func NewQueryTracker(ttl time.Duration, reg prometheus.Registerer) *QueryTracker {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &QueryTracker{
		ttl:        ttl,
		cache:      make(map[FragmentKey]FragmentResult),
		byQueryIdx: make(map[uniqueid.ID]map[FragmentKey]struct{}),
		tracked: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "impala_query_tracker_results_tracked",
			Help: "Number of fragment-instance results currently held by the query tracker.",
		}),
		expired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "impala_query_tracker_results_expired_total",
			Help: "Total number of fragment-instance results reclaimed by CleanExpired.",
		}),
	}
}

// Size returns the number of tracked fragment results.
func (qt *QueryTracker) Size() int {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	return len(qt.cache)
}

// InitWriting records that key's fragment instance has started producing a
// result.
func (qt *QueryTracker) InitWriting(key FragmentKey) {
	qt.set(key, FragmentResult{
		Status:     StatusWriting,
		Expiration: time.Now().Add(qt.ttl),
	})
}

// SetComplete marks key's fragment instance done, storing its result data.
func (qt *QueryTracker) SetComplete(key FragmentKey, data interface{}) {
	qt.set(key, FragmentResult{
		Data:       data,
		Status:     StatusDone,
		Expiration: time.Now().Add(qt.ttl),
	})
}

// SetError marks key's fragment instance failed.
func (qt *QueryTracker) SetError(key FragmentKey) {
	qt.set(key, FragmentResult{
		Status:     StatusError,
		Expiration: time.Now().Add(qt.ttl),
	})
}

func (qt *QueryTracker) set(key FragmentKey, result FragmentResult) {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	qt.cache[key] = result
	if qt.byQueryIdx[key.queryID] == nil {
		qt.byQueryIdx[key.queryID] = make(map[FragmentKey]struct{})
	}
	qt.byQueryIdx[key.queryID][key] = struct{}{}
	qt.tracked.Set(float64(len(qt.cache)))
}

// IsReady reports whether key's fragment instance completed successfully
// and has not yet expired.
func (qt *QueryTracker) IsReady(key FragmentKey) bool {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	result, ok := qt.cache[key]
	return ok && result.Status == StatusDone && time.Now().Before(result.Expiration)
}

// Get returns key's fragment result, if tracked and not yet expired.
func (qt *QueryTracker) Get(key FragmentKey) (FragmentResult, bool) {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	result, ok := qt.cache[key]
	if !ok || !time.Now().Before(result.Expiration) {
		return FragmentResult{}, false
	}
	return result, true
}

// Status returns key's current FragmentStatus, or "" if untracked.
func (qt *QueryTracker) Status(key FragmentKey) FragmentStatus {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	return qt.cache[key].Status
}

// CleanExpired drops every entry whose expiration has passed.
func (qt *QueryTracker) CleanExpired() {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	now := time.Now()
	var reclaimed int
	for key, result := range qt.cache {
		if now.After(result.Expiration) {
			qt.delete(key)
			reclaimed++
		}
	}
	if reclaimed > 0 {
		qt.expired.Add(float64(reclaimed))
		qt.tracked.Set(float64(len(qt.cache)))
	}
}

// ClearQuery drops every fragment result belonging to queryID, for use once
// a coordinator has reported the whole query done or cancelled.
func (qt *QueryTracker) ClearQuery(queryID uniqueid.ID) {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	for key := range qt.byQueryIdx[queryID] {
		qt.delete(key)
	}
	qt.tracked.Set(float64(len(qt.cache)))
}

// delete removes key from both the cache and the per-query index. Callers
// must hold qt.mu.
func (qt *QueryTracker) delete(key FragmentKey) {
	delete(qt.cache, key)
	if siblings := qt.byQueryIdx[key.queryID]; siblings != nil {
		delete(siblings, key)
		if len(siblings) == 0 {
			delete(qt.byQueryIdx, key.queryID)
		}
	}
}
