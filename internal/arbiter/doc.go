// Package arbiter resolves the effective setpoint for each
// scope/parameter pair from all concurrently active control sources.
//
// Candidates are collected in strict precedence order: safety
// interlock, e-stop, active override, active recipe stage target,
// demand-response directive. The first source with an opinion wins;
// lower-precedence candidates are retained as shadowed so the next one
// takes over without delay when the winner clears.
//
// ResolveEffective reads only committed state and never blocks on the
// tick driver. When a resolution changes the winning source or value,
// the engine appends a setpoint_update audit event and publishes the
// new target; re-publication of same-source value drift is gated on
// measured deviation crossing the target's deadband.
package arbiter
