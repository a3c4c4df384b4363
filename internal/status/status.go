// Package status defines the error taxonomy shared by all marketplace
// components. Every service operation fails with one of these sentinels
// (possibly wrapped); handlers translate them to HTTP responses.
package status

import "errors"

var (
	// ErrValidation - malformed input, recoverable by caller correction.
	ErrValidation = errors.New("validation: invalid input")

	// ErrAuthorization - actor lacks permission, never retried automatically.
	ErrAuthorization = errors.New("authorization: actor not permitted")

	// ErrInvalidTransition - the state machine rejects the requested move.
	ErrInvalidTransition = errors.New("transition: not allowed from current state")

	// ErrInsufficientInventory - not enough quantity left; recoverable by
	// re-querying availability.
	ErrInsufficientInventory = errors.New("inventory: insufficient quantity")

	// ErrUnknownSession - payment session id does not match any record.
	ErrUnknownSession = errors.New("payment: unknown session")

	// ErrStaleBooking - the booking moved to a terminal state after the
	// payment session was created; refund is an operational follow-up.
	ErrStaleBooking = errors.New("payment: booking no longer payable")

	// ErrOversell - money captured at the gateway but the inventory commit
	// lost the race. Flagged for manual reconciliation, never auto-resolved.
	ErrOversell = errors.New("inventory: oversold, manual reconciliation required")
)
