package audit

import (
	"context"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventRecipeChange       EventType = "recipe_change"
	EventSetpointUpdate     EventType = "setpoint_update"
	EventScheduleActivation EventType = "schedule_activation"
	EventOverride           EventType = "override_event"
	EventIrrigationCycle    EventType = "irrigation_cycle"
	EventDemandResponse     EventType = "dr_event"
)

// AllEventTypes returns all valid event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventRecipeChange,
		EventSetpointUpdate,
		EventScheduleActivation,
		EventOverride,
		EventIrrigationCycle,
		EventDemandResponse,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventRecipeChange, EventSetpointUpdate, EventScheduleActivation,
		EventOverride, EventIrrigationCycle, EventDemandResponse:
		return true
	default:
		return false
	}
}

// Event is a single immutable audit ledger entry.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor"`
	Scope     string         `json:"scope,omitempty"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// PrevHash is the Hash of the preceding ledger entry ("" for the
	// first entry). Hash covers this entry's content plus PrevHash.
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Filter controls which audit events Query returns.
// Results are always ordered by timestamp ascending so a caller can
// restart a scan from a known offset.
type Filter struct {
	Type   EventType  // optional: filter by event type
	Scope  string     // optional: filter by scope key ("pod:pod-3")
	Actor  string     // optional: filter by actor
	Since  *time.Time // optional: inclusive lower bound
	Until  *time.Time // optional: exclusive upper bound
	Limit  int        // default 100, max 500
	Offset int        // pagination offset
}

// Recorder is the write side of the ledger as seen by the domain
// packages. Implemented by *Ledger.
type Recorder interface {
	// Append records an event and returns its assigned ID.
	// Errors are never swallowed; callers must treat a failed append
	// as a failed state transition.
	Append(ctx context.Context, e *Event) (string, error)
}

// Repository is the storage interface behind the ledger.
type Repository interface {
	Insert(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
	// Last returns the most recent entry, or nil when the ledger is empty.
	Last(ctx context.Context) (*Event, error)
}
