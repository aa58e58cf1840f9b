// Package override implements the override manager: manual,
// time-bounded setpoint overrides per (scope, parameter) pair.
//
// State machine:
//
//	Requested -> Active -> {Reverted | Blocked | Escalated}
//
// Requested becomes Active immediately on successful validation.
// Reverted is reached by TTL expiry, explicit cancellation, or
// preemption by a strictly higher-precedence request. Blocked is
// reached when a safety interlock or e-stop signal arrives while the
// override is active; the override is marked, not silently dropped.
// Escalated hands control to a higher-precedence actor when an
// override's underlying condition outlives its TTL (the escalation
// policy itself lives outside this package).
//
// All terminal transitions use a compare-and-set on status: a
// cancellation and an expiry racing on the same override cannot both
// win, and the loser observes ErrStaleTransition (benign). Mutation of
// a single pair's state is serialised by a striped mutex keyed by the
// pair, so unrelated scopes proceed independently.
//
// At most one override is Active per (scope, parameter) pair. Expiry is
// driven by the Sweeper's periodic tick; see Sweeper for the accuracy
// contract.
package override
