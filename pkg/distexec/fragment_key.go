// Package distexec implements fragment-instance bookkeeping: a fragment
// instance is identified by (query id, fragment instance id) rather than a
// plain uint64 fragment ordinal, since QuerySchedule assigns whole
// fragment *instances*, not just fragment numbers, to backends.
package distexec

import "github.com/impala-query/fragment-runtime/pkg/uniqueid"

// FragmentKey uniquely identifies one fragment instance within a query.
type FragmentKey struct {
	queryID            uniqueid.ID
	fragmentInstanceID uniqueid.ID
}

// MakeFragmentKey builds a FragmentKey from a query id and a fragment
// instance id.
func MakeFragmentKey(queryID, fragmentInstanceID uniqueid.ID) FragmentKey {
	return FragmentKey{queryID: queryID, fragmentInstanceID: fragmentInstanceID}
}

// QueryID returns the id shared across every fragment instance of this
// query.
func (f FragmentKey) QueryID() uniqueid.ID { return f.queryID }

// FragmentInstanceID returns the id of this specific fragment instance.
func (f FragmentKey) FragmentInstanceID() uniqueid.ID { return f.fragmentInstanceID }
