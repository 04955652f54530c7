// Package rpcerr classifies RPC failures into the split the retry state
// machines in this module need: transport failures (retried), and
// everything else (final). A sentinel error wrapper checked by errors.As
// stands in for catching a specific exception type.
package rpcerr

import "fmt"

// TransportError wraps an underlying connection-level failure: one retry
// after a Reopen is permitted.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Wrap builds a TransportError.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}
