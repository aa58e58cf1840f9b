package arbiter

import "errors"

var (
	// ErrInvalidSignal indicates a malformed safety or e-stop signal.
	ErrInvalidSignal = errors.New("arbiter: invalid signal")

	// ErrInvalidDirective indicates a malformed demand-response
	// directive.
	ErrInvalidDirective = errors.New("arbiter: invalid directive")

	// ErrDirectiveNotFound indicates an unknown directive ID.
	ErrDirectiveNotFound = errors.New("arbiter: directive not found")

	// ErrSignalNotFound indicates no active signal for the pair.
	ErrSignalNotFound = errors.New("arbiter: signal not found")
)
