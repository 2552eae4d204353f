package bridge

import "fmt"

// ErrNoListener is returned when no handler is registered for an action,
// the equivalent of sending to a page with no content script.
type ErrNoListener struct {
	Action Action
}

func (e *ErrNoListener) Error() string {
	return fmt.Sprintf("bridge: no listener for action %q", e.Action)
}

// ErrUnreachable is returned when the daemon cannot be reached at all:
// not started yet, wrong address, or shutting down.
type ErrUnreachable struct {
	Endpoint string
	Cause    error
}

func (e *ErrUnreachable) Error() string {
	return fmt.Sprintf("bridge: %s unreachable: %v", e.Endpoint, e.Cause)
}

func (e *ErrUnreachable) Unwrap() error { return e.Cause }
