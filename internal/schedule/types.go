package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
)

// minutesPerDay is the range of a TimeOfDay value.
const minutesPerDay = 24 * 60

// TimeOfDay is a clock time expressed as minutes since midnight.
// It serialises as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("time of day %q: expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayFrom extracts the time-of-day of t in the given location.
func TimeOfDayFrom(t time.Time, loc *time.Location) TimeOfDay {
	local := t.In(loc)
	return TimeOfDay(local.Hour()*60 + local.Minute())
}

// String returns the "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON serialises as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the "HH:MM" form.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BlackoutWindow is a daily-recurring time range during which recipe
// activations are disallowed. A window whose end precedes its start
// wraps midnight (e.g. 23:00–02:00).
type BlackoutWindow struct {
	Start  TimeOfDay `json:"start"`
	End    TimeOfDay `json:"end"`
	Reason string    `json:"reason"`
}

// Contains reports whether the given time-of-day falls inside the
// window. The start bound is inclusive, the end bound exclusive.
func (w BlackoutWindow) Contains(t TimeOfDay) bool {
	if w.Start <= w.End {
		return t >= w.Start && t < w.End
	}
	// Wraps midnight.
	return t >= w.Start || t < w.End
}

// Overlaps reports whether two windows share any minute of the day.
func (w BlackoutWindow) Overlaps(other BlackoutWindow) bool {
	for _, segA := range w.segments() {
		for _, segB := range other.segments() {
			if segA[0] < segB[1] && segB[0] < segA[1] {
				return true
			}
		}
	}
	return false
}

// segments splits a window into non-wrapping [start, end) ranges.
func (w BlackoutWindow) segments() [][2]int {
	if w.Start <= w.End {
		return [][2]int{{int(w.Start), int(w.End)}}
	}
	return [][2]int{{int(w.Start), minutesPerDay}, {0, int(w.End)}}
}

// DayPeriod distinguishes the photoperiod halves of a schedule.
type DayPeriod string

const (
	PeriodDay   DayPeriod = "day"
	PeriodNight DayPeriod = "night"
)

// Schedule holds the per-scope timing configuration and the currently
// active recipe, if any.
type Schedule struct {
	ID       string        `json:"id"`
	Scope    control.Scope `json:"scope"`
	Timezone string        `json:"timezone"`

	DayStart   TimeOfDay `json:"day_start"`
	NightStart TimeOfDay `json:"night_start"`

	// Blackouts must not overlap each other within one schedule.
	Blackouts []BlackoutWindow `json:"blackouts,omitempty"`

	// Active recipe, nil semantics: ActivatedAt == nil means none.
	ActiveRecipeID string     `json:"active_recipe_id,omitempty"`
	ActiveVersion  int        `json:"active_version,omitempty"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`

	// DeferredParams are parameters the active recipe may not yet
	// control because an override with recipe-or-higher precedence
	// pinned them at activation time.
	DeferredParams []control.Parameter `json:"deferred_params,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves the schedule's timezone.
func (s *Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, s.Timezone, err)
	}
	return loc, nil
}

// InBlackout returns the first blackout window containing the given
// time-of-day, if any.
func (s *Schedule) InBlackout(t TimeOfDay) (BlackoutWindow, bool) {
	for _, w := range s.Blackouts {
		if w.Contains(t) {
			return w, true
		}
	}
	return BlackoutWindow{}, false
}

// PeriodAt reports whether t falls in the schedule's day or night.
func (s *Schedule) PeriodAt(t TimeOfDay) DayPeriod {
	day := BlackoutWindow{Start: s.DayStart, End: s.NightStart}
	if day.Contains(t) {
		return PeriodDay
	}
	return PeriodNight
}

// Copy returns an independent copy of the schedule.
func (s *Schedule) Copy() *Schedule {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Blackouts != nil {
		cpy.Blackouts = make([]BlackoutWindow, len(s.Blackouts))
		copy(cpy.Blackouts, s.Blackouts)
	}
	if s.DeferredParams != nil {
		cpy.DeferredParams = make([]control.Parameter, len(s.DeferredParams))
		copy(cpy.DeferredParams, s.DeferredParams)
	}
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		cpy.ActivatedAt = &t
	}
	return &cpy
}

// Activation is a pending, future-dated recipe activation.
type Activation struct {
	ID         string        `json:"id"`
	Scope      control.Scope `json:"scope"`
	RecipeID   string        `json:"recipe_id"`
	Version    int           `json:"version"`
	ActivateAt time.Time     `json:"activate_at"`

	// Deferred lists first-stage parameters pinned by an override at
	// scheduling time; they stay deferred after activation until the
	// override clears.
	Deferred []control.Parameter `json:"deferred,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Copy returns an independent copy of the activation.
func (a *Activation) Copy() *Activation {
	if a == nil {
		return nil
	}
	cpy := *a
	if a.Deferred != nil {
		cpy.Deferred = make([]control.Parameter, len(a.Deferred))
		copy(cpy.Deferred, a.Deferred)
	}
	return &cpy
}

// BatchGroup is a named collection of pods sharing a recipe activation.
// Its scope is (batch_group, ID); stage and stage day derive from that
// scope's schedule.
type BatchGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PodIDs    []string  `json:"pod_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope returns the control scope addressing this group.
func (g *BatchGroup) Scope() control.Scope {
	return control.Scope{Kind: control.ScopeBatchGroup, ID: g.ID}
}

// Copy returns an independent copy of the batch group.
func (g *BatchGroup) Copy() *BatchGroup {
	if g == nil {
		return nil
	}
	cpy := *g
	if g.PodIDs != nil {
		cpy.PodIDs = make([]string, len(g.PodIDs))
		copy(cpy.PodIDs, g.PodIDs)
	}
	return &cpy
}

// StagePosition describes where a scope currently sits within its
// active recipe.
type StagePosition struct {
	RecipeID string           `json:"recipe_id"`
	Version  int              `json:"version"`
	Stage    recipe.Stage     `json:"stage"`
	StageDay int              `json:"stage_day"` // 1-based day within the stage
	Period   DayPeriod        `json:"period"`
	Elapsed  time.Duration    `json:"-"` // time into the current stage
}

// TargetContext is everything the arbitration engine needs to compute
// the recipe candidate for one (scope, parameter) pair: the stage's
// setpoint target plus the schedule state that selects and shapes it.
type TargetContext struct {
	Target   recipe.SetpointTarget
	Period   DayPeriod
	Stage    recipe.StageType
	StageDay int
	// StageElapsed is the time since the current stage began, used for
	// ramp interpolation.
	StageElapsed time.Duration
}
