package reconcile

import "errors"

var (
	// ErrNotStarted is returned by entry points called before Start.
	ErrNotStarted = errors.New("reconcile: engine not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("reconcile: engine already started")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("reconcile: engine stopped")
)
