package schedule

import "errors"

// Domain errors for the schedule package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, schedule.ErrBlackoutConflict) {
//	    // activation time falls in a blackout window
//	}
var (
	// ErrNotFound is returned when no schedule exists for a scope.
	ErrNotFound = errors.New("schedule: not found")

	// ErrExists is returned when creating a schedule for a scope that
	// already has one.
	ErrExists = errors.New("schedule: already exists")

	// ErrInvalidSchedule is returned when schedule validation fails
	// (bad timezone, unparseable times, invalid scope).
	ErrInvalidSchedule = errors.New("schedule: invalid")

	// ErrWindowOverlap is returned when blackout windows within one
	// schedule overlap each other.
	ErrWindowOverlap = errors.New("schedule: blackout windows overlap")

	// ErrWindowNotFound is returned when a blackout window index does
	// not exist.
	ErrWindowNotFound = errors.New("schedule: blackout window not found")

	// ErrBlackoutConflict is returned when an activation's time-of-day
	// falls inside a configured blackout window.
	ErrBlackoutConflict = errors.New("schedule: activation in blackout window")

	// ErrActivationNotFound is returned when an activation ID does not
	// exist.
	ErrActivationNotFound = errors.New("schedule: activation not found")

	// ErrActivationPassed is returned when cancelling an activation
	// whose effective time has already passed. Only future-dated
	// activations can be withdrawn.
	ErrActivationPassed = errors.New("schedule: activation time passed")

	// ErrNoActiveRecipe is returned when stage information is requested
	// for a scope with no active recipe.
	ErrNoActiveRecipe = errors.New("schedule: no active recipe")

	// ErrGroupNotFound is returned when a batch group ID does not exist.
	ErrGroupNotFound = errors.New("schedule: batch group not found")
)
