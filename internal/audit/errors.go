package audit

import "errors"

// Domain errors for the audit package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, audit.ErrWriteFailed) {
//	    // roll back the triggering state change
//	}
var (
	// ErrWriteFailed is returned when a ledger append cannot be made
	// durable. The triggering state change must not be accepted.
	ErrWriteFailed = errors.New("audit: write failed")

	// ErrInvalidEvent is returned when an event fails validation
	// (unknown type, missing actor or action).
	ErrInvalidEvent = errors.New("audit: invalid event")

	// ErrChainBroken is returned by VerifyChain when a recomputed hash
	// does not match the stored one.
	ErrChainBroken = errors.New("audit: hash chain broken")
)
