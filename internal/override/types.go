package override

import (
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// Status represents the state of an override.
type Status string

const (
	// StatusRequested is the initial state, held only during
	// validation; a valid request becomes Active immediately.
	StatusRequested Status = "requested"

	// StatusActive means the override currently pins its pair.
	StatusActive Status = "active"

	// StatusReverted is terminal: TTL expiry, cancellation, or
	// preemption by a higher-precedence request.
	StatusReverted Status = "reverted"

	// StatusBlocked is terminal: a safety interlock or e-stop signal
	// arrived while the override was active.
	StatusBlocked Status = "blocked"

	// StatusEscalated is terminal: the override's condition outlived
	// its TTL and was handed to a higher-precedence actor.
	StatusEscalated Status = "escalated"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusReverted, StatusBlocked, StatusEscalated:
		return true
	default:
		return false
	}
}

// Override is a manual, time-bounded setpoint override for one
// (scope, parameter) pair.
type Override struct {
	ID        string             `json:"id"`
	Scope     control.Scope      `json:"scope"`
	Parameter control.Parameter  `json:"parameter"`
	// CurrentValue is the effective value at request time, captured by
	// the caller for display and audit; nil when no source had an
	// opinion.
	CurrentValue  *float64           `json:"current_value,omitempty"`
	OverrideValue float64            `json:"override_value"`
	Unit          string             `json:"unit,omitempty"`
	TTLSeconds    int                `json:"ttl_seconds"`
	Reason        string             `json:"reason"`
	Actor         string             `json:"actor"`
	Precedence    control.Precedence `json:"precedence"`
	Status        Status             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`

	// ExpiresAt is always CreatedAt + TTLSeconds.
	ExpiresAt  time.Time  `json:"expires_at"`
	RevertedAt *time.Time `json:"reverted_at,omitempty"`
}

// PairKey returns the canonical key of the override's pair.
func (o *Override) PairKey() string {
	return control.PairKey(o.Scope, o.Parameter)
}

// Copy returns an independent copy of the override.
func (o *Override) Copy() *Override {
	if o == nil {
		return nil
	}
	cpy := *o
	if o.CurrentValue != nil {
		v := *o.CurrentValue
		cpy.CurrentValue = &v
	}
	if o.RevertedAt != nil {
		t := *o.RevertedAt
		cpy.RevertedAt = &t
	}
	return &cpy
}

// Request carries the parameters of a new override request.
type Request struct {
	Scope         control.Scope
	Parameter     control.Parameter
	OverrideValue float64
	CurrentValue  *float64
	Unit          string
	TTLSeconds    int
	Reason        string
	Actor         string

	// Precedence defaults to control.PrecedenceManual when zero.
	// Safety and e-stop precedences are used by interlock handlers.
	Precedence control.Precedence
}
