// Package poolauth implements pool authorization: a
// file-loaded whitelist mapping user -> permitted admission pools, plus a
// set of default pools available to everyone, and GetYarnPool's resolution
// order.
package poolauth

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/impala-query/fragment-runtime/pkg/status"
)

// Whitelist is the parsed form of the pool authorization file.
type Whitelist struct {
	// UserPools maps a username to the pools it may request explicitly.
	UserPools map[string][]string `yaml:"user_pools"`
	// DefaultPools are accessible to any user regardless of UserPools.
	DefaultPools []string `yaml:"default_pools"`
}

// ScheduleOptions carries the per-query pool request: the caller may ask
// for a specific pool by name.
type ScheduleOptions struct {
	RequestedPool string
}

// Load parses a whitelist document.
func Load(data []byte) (*Whitelist, error) {
	var w Whitelist
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("poolauth: parsing whitelist: %w", err)
	}
	return &w, nil
}

func contains(pools []string, pool string) bool {
	for _, p := range pools {
		if p == pool {
			return true
		}
	}
	return false
}

// GetYarnPool resolves the admission pool for user given opts: the
// requested pool if the user is permitted it, else the user's first pool,
// else any default pool, else PermissionDenied.
func (w *Whitelist) GetYarnPool(user string, opts ScheduleOptions) (string, status.Status) {
	userPools := w.UserPools[user]

	if opts.RequestedPool != "" {
		if contains(userPools, opts.RequestedPool) || contains(w.DefaultPools, opts.RequestedPool) {
			return opts.RequestedPool, status.Ok
		}
	}

	if len(userPools) > 0 {
		return userPools[0], status.Ok
	}

	if len(w.DefaultPools) > 0 {
		return w.DefaultPools[0], status.Ok
	}

	return "", status.New(status.PermissionDenied, "no pool available for user %q", user)
}
