package httpclient

import (
	"errors"
	"fmt"
)

// TransportError marks a network-level failure: connection refused or
// reset, DNS failure, timeout. An HTTP error status is never a
// TransportError; callers receive those as ordinary responses because
// an error status is often the expected probe outcome.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
