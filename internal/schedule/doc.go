// Package schedule implements the schedule manager: per-scope day/night
// timing, daily-recurring blackout windows, recipe activation
// scheduling, and batch group stage tracking.
//
// Activation scheduling enforces three rules: the recipe version must
// be published; the activation instant's time-of-day must not fall in
// any blackout window configured for the scope (windows recur daily and
// may wrap midnight); and parameters pinned by an active override with
// recipe-or-higher precedence are deferred — the activation is accepted,
// but those parameters only come under recipe control once the pinning
// override clears, with the deferral and its release both audited.
//
// Due activations and deferral releases are applied by the shared tick
// driver (see the override package's Sweeper); the tick interval bounds
// activation accuracy to within one second of the scheduled instant.
//
// Once a recipe is active on a scope, the manager derives the current
// stage and stage day by walking cumulative stage durations from the
// activation timestamp.
package schedule
