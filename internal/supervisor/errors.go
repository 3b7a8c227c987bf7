package supervisor

import "errors"

var (
	// ErrShuttingDown is returned when an operation loses the race
	// against an in-flight Stop. Shutdown is authoritative.
	ErrShuttingDown = errors.New("supervisor is shutting down")

	// ErrExhausted is the terminal condition after the restart budget is
	// consumed. Only an explicit Restart resets it.
	ErrExhausted = errors.New("restart budget exhausted; manual restart required")

	// ErrStartInProgress is returned when Start is called while a launch
	// attempt is already in flight.
	ErrStartInProgress = errors.New("a launch attempt is already in progress")
)
