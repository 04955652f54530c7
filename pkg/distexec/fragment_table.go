package distexec

import (
	"context"
	"sync"
	"time"

	"github.com/impala-query/fragment-runtime/pkg/services"
)

type fragmentEntry struct {
	addr      string
	createdAt time.Time
}

// FragmentTable maintains the mapping between fragment instances and the
// backend address executing them, so the coordinator (and peer fragment
// instances opening exchange connections) can find where a given fragment
// instance lives. Entries expire after a configured duration to bound
// memory for long-dead queries.
type FragmentTable struct {
	*services.BasicService

	mu         sync.RWMutex
	mappings   map[FragmentKey]fragmentEntry
	expiration time.Duration
}

// NewFragmentTable returns a FragmentTable; call StartAsync to begin the
// periodic expiry sweep (half the expiration period), and StopAsync to
// stop it.
func NewFragmentTable(expiration time.Duration) *FragmentTable {
	ft := &FragmentTable{
		mappings:   make(map[FragmentKey]fragmentEntry),
		expiration: expiration,
	}
	ft.BasicService = services.NewBasicService(ft.run, nil)
	return ft
}

func (f *FragmentTable) run(ctx context.Context) error {
	interval := f.expiration / 2
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			f.cleanupExpired()
		}
	}
}

// AddAddress associates addr with the fragment instance identified by key.
func (f *FragmentTable) AddAddress(key FragmentKey, addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[key] = fragmentEntry{addr: addr, createdAt: time.Now()}
}

// Addr returns the backend address for key, if known.
func (f *FragmentTable) Addr(key FragmentKey) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.mappings[key]
	return e.addr, ok
}

func (f *FragmentTable) cleanupExpired() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for key, entry := range f.mappings {
		if now.Sub(entry.createdAt) > f.expiration {
			delete(f.mappings, key)
		}
	}
}

// Size returns the number of live mappings, for tests/metrics.
func (f *FragmentTable) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.mappings)
}
