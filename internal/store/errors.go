package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrPersistenceTimeout = errors.New("persistence timeout")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrRemoteDisabled     = errors.New("remote store not configured")
)

// PersistenceError reports a remote load or save that did not complete. It
// matches ErrPersistenceTimeout or ErrPersistenceFailure with errors.Is.
type PersistenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("remote %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PersistenceError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

func (e *PersistenceError) Unwrap() []error {
	kind := ErrPersistenceFailure
	if e.Timeout() {
		kind = ErrPersistenceTimeout
	}
	return []error{kind, e.Err}
}
