// Package recipe implements the recipe store: versioned, stage-based
// setpoint templates for controlled growing environments.
//
// A Recipe owns a history of immutable RecipeVersions. Each version
// holds an ordered list of Stages (germination, vegetative, flowering,
// harvest), and each stage a set of SetpointTargets — one per
// environmental parameter, with optional day/night values, ramp and
// min/max bounds.
//
// Lifecycle: a recipe starts as a draft with a mutable working version.
// Publishing re-validates the working version, freezes it, and bumps
// the recipe's current version. Published versions are never edited;
// Clone produces a new, independently mutable draft. Publishing has no
// effect on running batch groups until the schedule manager explicitly
// activates the new version.
//
// Validation distinguishes error severity (blocks save-as-draft and
// publish: empty name, no stages, non-positive stage duration, value
// outside its own bounds) from warning severity (surfaced but
// non-blocking: duplicate setpoint target for one parameter).
package recipe
