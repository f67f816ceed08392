package model

import "errors"

// Error taxonomy for the settlement core. Every core operation returns one of
// these sentinels (possibly wrapped); handlers map them to HTTP status codes
// with errors.Is. Nothing in this package panics across the ledger boundary.
var (
	// ErrInvalidAmount covers non-positive amounts, negative opening floats,
	// and amounts with sub-cent precision.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOverCollection is returned when a non-cash tender would push the
	// collected total past the target beyond the configured tolerance.
	ErrOverCollection = errors.New("tender exceeds outstanding balance")

	// ErrInvalidStateTransition covers verify/fail/void attempts on tenders or
	// settlements in a terminal or wrong state. Treated as a UI/programming
	// error: logged and surfaced, never recovered silently.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrSessionClosed      = errors.New("cash session is closed")
	ErrSessionNotOpen     = errors.New("cash session is not open")
	ErrSessionAlreadyOpen = errors.New("an open cash session already exists for this operator and location")

	// ErrNoOpenSession is returned by the coordinator when a sale is started
	// against a session that is missing or not open.
	ErrNoOpenSession = errors.New("no open cash session")

	ErrNotFound = errors.New("not found")
)
