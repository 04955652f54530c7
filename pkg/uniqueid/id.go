// Package uniqueid implements UniqueId: a 128-bit opaque
// identity used for query ids, fragment-instance ids, and reservation ids.
package uniqueid

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid"
)

// ID is a 128-bit value, comparable and hashable by value so it can be
// used directly as a map key.
type ID struct {
	Hi, Lo uint64
}

func (id ID) String() string {
	return fmt.Sprintf("%016x:%016x", id.Hi, id.Lo)
}

// Less imposes a total order, used where ids need deterministic
// iteration (e.g. sorted scheduler output in tests).
func (id ID) Less(other ID) bool {
	if id.Hi != other.Hi {
		return id.Hi < other.Hi
	}
	return id.Lo < other.Lo
}

// Zero is the zero-value ID, never returned by Generate.
var Zero ID

// Generate returns a fresh ID sourced from crypto/rand via a ULID entropy
// source.
func Generate() ID {
	u := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	b := u[:] // 16 bytes, big-endian
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return ID{Hi: hi, Lo: lo}
}

// From constructs an ID from explicit hi/lo halves, used by callers that
// already have one (e.g. a frontend-supplied query id arriving over the
// wire).
func From(hi, lo uint64) ID {
	return ID{Hi: hi, Lo: lo}
}
