// Package backend holds the scheduler's plain data types:
// BackendDescriptor, ScanRangeLocation, QuerySchedule. Split out from
// pkg/scheduler itself so pkg/membership can share Descriptor without
// importing the scheduler package that depends on membership.
package backend

import (
	"strconv"

	"github.com/impala-query/fragment-runtime/pkg/uniqueid"
)

// Descriptor identifies one backend process: its dispatch address, its
// resolved ip, and any service tags it advertises. Immutable once
// observed.
type Descriptor struct {
	ID      string
	Host    string
	Port    int
	IP      string
	Tags    map[string]string
}

// Address returns the host:port dispatch address for this backend.
func (d Descriptor) Address() string {
	return d.Host + ":" + strconv.Itoa(d.Port)
}

// ScanRange is an opaque, byte-addressable reference to a unit of input
// data ("scan range"); its contents are outside this module's
// scope (non-goal: storage-format scan implementation).
type ScanRange struct {
	Ref interface{}
}

// ScanRangeLocation pairs a ScanRange with its locality preference list:
// hosts ordered by how "close" they are to the data (e.g. replica hosts
// first).
type ScanRangeLocation struct {
	Range ScanRange
	Hosts []string
}

// FragmentInstance is one execution instance of a plan fragment, pinned to
// a backend and carrying the share of ScanRangeLocations it must read.
type FragmentInstance struct {
	InstanceID uniqueid.ID
	FragmentID int
	Backend    Descriptor
	ScanRanges []ScanRangeLocation
}

// QuerySchedule holds, for each plan fragment, its execution instances.
// Nothing in this module builds one: the Scheduler has no Schedule method
// and produces Assignment lists and host lists instead.
type QuerySchedule struct {
	QueryID   uniqueid.ID
	Instances map[int][]FragmentInstance // fragment id -> instances
}

// FragmentHosts returns the deduplicated set of backend ids executing
// fragmentID, in insertion order.
func (qs QuerySchedule) FragmentHosts(fragmentID int) []string {
	seen := map[string]bool{}
	var hosts []string
	for _, inst := range qs.Instances[fragmentID] {
		if !seen[inst.Backend.ID] {
			seen[inst.Backend.ID] = true
			hosts = append(hosts, inst.Backend.ID)
		}
	}
	return hosts
}
