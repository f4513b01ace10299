package harness

import (
	"errors"
	"fmt"
)

// ProtocolError marks a malformed or unparsable server response. The
// affected scenario fails with diagnostic detail; the run continues.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// HarnessError marks a setup or teardown failure, such as a rejected
// MKCALENDAR. During setup it aborts the run before any scenario
// executes; during teardown it is logged and does not overwrite
// collected outcomes.
type HarnessError struct {
	Phase string
	Err   error
}

func (e *HarnessError) Error() string {
	return fmt.Sprintf("harness failure during %s: %v", e.Phase, e.Err)
}

func (e *HarnessError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
