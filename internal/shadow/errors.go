package shadow

import "errors"

// Domain errors for the shadow package.
var (
	// ErrUpdateRejected is returned when the shadow service rejects an update.
	ErrUpdateRejected = errors.New("shadow: update rejected")

	// ErrAckTimeout is returned when neither accepted nor rejected arrives in time.
	ErrAckTimeout = errors.New("shadow: acknowledgment timed out")

	// ErrInvalidThing is returned for an empty thing name.
	ErrInvalidThing = errors.New("shadow: thing name cannot be empty")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("shadow: client closed")
)
