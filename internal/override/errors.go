package override

import "errors"

// Domain errors for the override package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, override.ErrPreemptionRequired) {
//	    // an equal-or-higher precedence override already holds the pair
//	}
var (
	// ErrNotFound is returned when an override ID does not exist.
	ErrNotFound = errors.New("override: not found")

	// ErrInvalidRequest is returned when request validation fails
	// (empty reason, non-positive TTL, invalid scope or parameter).
	ErrInvalidRequest = errors.New("override: invalid request")

	// ErrPreemptionRequired is returned when an active override with
	// equal or higher precedence already pins the (scope, parameter)
	// pair. Only a strictly higher-precedence request preempts.
	ErrPreemptionRequired = errors.New("override: preemption required")

	// ErrStaleTransition is returned when a terminal transition is
	// attempted on an override that is no longer Active. The losing
	// side of a cancel/expire race sees this; callers treat it as
	// benign.
	ErrStaleTransition = errors.New("override: stale transition")
)
