// Package audit implements the append-only audit ledger.
//
// Every state transition in the control core (recipe lifecycle changes,
// schedule activations, override transitions, arbitration outcomes,
// demand-response events) is recorded as an immutable Event. Events are
// hash-chained: each entry carries the SHA-256 hash of its own content
// combined with the previous entry's hash, so truncation or in-place
// edits of the ledger are detectable by VerifyChain.
//
// The ledger never updates or deletes entries, and Append never fails
// silently: storage errors propagate to the caller so the triggering
// state change can be rolled back (the core is fail-closed — a control
// decision without a durable audit record is not accepted).
//
// Chain verification is an on-demand operation, not performed on every
// write, and makes no claim to any specific compliance cryptographic
// standard: the chain is unkeyed SHA-256 content hashing.
package audit
