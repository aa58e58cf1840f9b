package control

import (
	"fmt"
	"strings"
)

// ScopeKind identifies the type of addressable control unit.
type ScopeKind string

const (
	ScopeRoom       ScopeKind = "room"
	ScopePod        ScopeKind = "pod"
	ScopeBatchGroup ScopeKind = "batch_group"
	ScopeSite       ScopeKind = "site"
)

// AllScopeKinds returns all valid scope kinds.
func AllScopeKinds() []ScopeKind {
	return []ScopeKind{ScopeRoom, ScopePod, ScopeBatchGroup, ScopeSite}
}

// Scope addresses a single unit of environmental control.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// Key returns the canonical string form "kind:id" used as a map key
// and in MQTT topics and audit events.
func (s Scope) Key() string {
	return string(s.Kind) + ":" + s.ID
}

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// Valid reports whether the scope has a known kind and a non-empty ID.
func (s Scope) Valid() bool {
	if s.ID == "" {
		return false
	}
	switch s.Kind {
	case ScopeRoom, ScopePod, ScopeBatchGroup, ScopeSite:
		return true
	default:
		return false
	}
}

// ParseScope parses the canonical "kind:id" form produced by Scope.Key.
func ParseScope(key string) (Scope, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return Scope{}, fmt.Errorf("scope %q: expected kind:id", key)
	}
	s := Scope{Kind: ScopeKind(kind), ID: id}
	if !s.Valid() {
		return Scope{}, fmt.Errorf("scope %q: unknown kind or empty id", key)
	}
	return s, nil
}

// Parameter identifies an environmental setpoint parameter.
type Parameter string

const (
	ParamTemperature    Parameter = "temperature"
	ParamRH             Parameter = "rh"
	ParamVPD            Parameter = "vpd"
	ParamCO2            Parameter = "co2"
	ParamLightIntensity Parameter = "light_intensity"
	ParamPhotoperiod    Parameter = "photoperiod"
)

// AllParameters returns all valid setpoint parameters.
func AllParameters() []Parameter {
	return []Parameter{
		ParamTemperature,
		ParamRH,
		ParamVPD,
		ParamCO2,
		ParamLightIntensity,
		ParamPhotoperiod,
	}
}

// Valid reports whether p is a known parameter.
func (p Parameter) Valid() bool {
	switch p {
	case ParamTemperature, ParamRH, ParamVPD, ParamCO2, ParamLightIntensity, ParamPhotoperiod:
		return true
	default:
		return false
	}
}

// PairKey returns the canonical key for a (scope, parameter) pair.
// All per-pair state (active overrides, arbitration history, lock
// striping) is keyed by this form.
func PairKey(s Scope, p Parameter) string {
	return s.Key() + "|" + string(p)
}

// Precedence is the closed, totally-ordered ranking of control sources.
// Higher values win arbitration. The zero value is not a valid precedence.
type Precedence int

const (
	// PrecedenceDemandResponse is the lowest-ranked source: utility
	// demand-response directives.
	PrecedenceDemandResponse Precedence = iota + 1

	// PrecedenceRecipe is the active recipe's stage setpoint.
	PrecedenceRecipe

	// PrecedenceManual is an operator-requested manual override.
	PrecedenceManual

	// PrecedenceEStop is an emergency-stop signal.
	PrecedenceEStop

	// PrecedenceSafety is a safety interlock. Nothing outranks it.
	PrecedenceSafety
)

// precedenceNames maps precedence levels to their wire/audit names.
var precedenceNames = map[Precedence]string{
	PrecedenceSafety:         "safety",
	PrecedenceEStop:          "e_stop",
	PrecedenceManual:         "manual_override",
	PrecedenceRecipe:         "recipe",
	PrecedenceDemandResponse: "demand_response",
}

// String returns the wire name of the precedence level.
func (p Precedence) String() string {
	if name, ok := precedenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("precedence(%d)", int(p))
}

// Valid reports whether p is a defined precedence level.
func (p Precedence) Valid() bool {
	_, ok := precedenceNames[p]
	return ok
}

// Outranks reports whether p is strictly higher precedence than other.
func (p Precedence) Outranks(other Precedence) bool {
	return p > other
}

// ParsePrecedence converts a wire name back to a Precedence.
func ParsePrecedence(name string) (Precedence, error) {
	for p, n := range precedenceNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown precedence %q", name)
}

// DescendingPrecedence returns all precedence levels, highest first.
// Arbitration walks this slice so that the comparison order is
// exhaustive and fixed at compile time.
func DescendingPrecedence() []Precedence {
	return []Precedence{
		PrecedenceSafety,
		PrecedenceEStop,
		PrecedenceManual,
		PrecedenceRecipe,
		PrecedenceDemandResponse,
	}
}
