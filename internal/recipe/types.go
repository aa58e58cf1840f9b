package recipe

import (
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// Status represents the lifecycle state of a recipe.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusApplied    Status = "applied" // activated on at least one scope
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// StageType classifies a growth stage.
type StageType string

const (
	StageGermination StageType = "germination"
	StageVegetative  StageType = "vegetative"
	StageFlowering   StageType = "flowering"
	StageHarvest     StageType = "harvest"
)

// AllStageTypes returns all valid stage types.
func AllStageTypes() []StageType {
	return []StageType{StageGermination, StageVegetative, StageFlowering, StageHarvest}
}

// Valid reports whether t is a known stage type.
func (t StageType) Valid() bool {
	switch t {
	case StageGermination, StageVegetative, StageFlowering, StageHarvest:
		return true
	default:
		return false
	}
}

// Ramp describes a time-bounded linear interpolation applied at the
// start of a stage: the setpoint scales from StartPercent to EndPercent
// of the selected value over DurationMinutes, then holds at EndPercent.
type Ramp struct {
	StartPercent    float64 `json:"start_percent"`
	EndPercent      float64 `json:"end_percent"`
	DurationMinutes int     `json:"duration_minutes"`
}

// SetpointTarget is the desired value for one parameter within a stage.
//
// At most one target per parameter is allowed per stage; a duplicate is
// surfaced as a warning-severity validation issue ("conflicting
// setpoints") and the first target wins at arbitration time.
type SetpointTarget struct {
	Parameter control.Parameter `json:"parameter"`

	// Value is the base setpoint, used when no day/night split applies.
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`

	// DayValue/NightValue, when set, replace Value during the
	// schedule's day/night periods respectively.
	DayValue   *float64 `json:"day_value,omitempty"`
	NightValue *float64 `json:"night_value,omitempty"`

	// Ramp, when set, interpolates the selected value at stage start.
	Ramp *Ramp `json:"ramp,omitempty"`

	// Deadband is the tolerance band around the setpoint within which
	// no re-evaluation is triggered (hysteresis input).
	Deadband float64 `json:"deadband"`

	// Min/Max, when set, clamp the effective value. A configured value
	// outside [Min, Max] is an error-severity validation issue.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Stage is one growth phase within a recipe version.
type Stage struct {
	Type         StageType        `json:"type"`
	DurationDays int              `json:"duration_days"` // must be > 0
	OrderIndex   int              `json:"order_index"`
	Targets      []SetpointTarget `json:"targets"`
}

// Target returns the first setpoint target for the given parameter.
// When duplicates exist (a warning-level validation issue) the first
// one in declaration order wins.
func (s *Stage) Target(p control.Parameter) (SetpointTarget, bool) {
	for _, t := range s.Targets {
		if t.Parameter == p {
			return t, true
		}
	}
	return SetpointTarget{}, false
}

// Version is an immutable snapshot of a recipe's stages.
// The working version of a draft recipe is the only mutable version;
// publishing freezes it.
type Version struct {
	RecipeID  string    `json:"recipe_id"`
	Number    int       `json:"number"`
	Published bool      `json:"published"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
	Stages    []Stage   `json:"stages"`
}

// TotalDays returns the cumulative duration of all stages in days.
func (v *Version) TotalDays() int {
	total := 0
	for _, s := range v.Stages {
		total += s.DurationDays
	}
	return total
}

// StageAt returns the stage covering the given zero-based day offset
// from activation, plus the 1-based day within that stage.
// Returns false when the offset is negative or past the last stage.
func (v *Version) StageAt(dayOffset int) (Stage, int, bool) {
	if dayOffset < 0 {
		return Stage{}, 0, false
	}
	elapsed := 0
	for _, s := range v.Stages {
		if dayOffset < elapsed+s.DurationDays {
			return s, dayOffset - elapsed + 1, true
		}
		elapsed += s.DurationDays
	}
	return Stage{}, 0, false
}

// Recipe is a named, versioned setpoint template.
type Recipe struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Owner          string    `json:"owner"`
	Status         Status    `json:"status"`
	CurrentVersion int       `json:"current_version"` // last published version, 0 if none
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Version.
// Stage and target slices are cloned so modifications to the copy do
// not affect the original. This is essential for cache isolation.
func (v *Version) DeepCopy() *Version {
	if v == nil {
		return nil
	}
	cpy := *v
	if v.Stages != nil {
		cpy.Stages = make([]Stage, len(v.Stages))
		for i, s := range v.Stages {
			cpy.Stages[i] = *s.DeepCopy()
		}
	}
	return &cpy
}

// DeepCopy creates an independent copy of the Stage.
func (s *Stage) DeepCopy() *Stage {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Targets != nil {
		cpy.Targets = make([]SetpointTarget, len(s.Targets))
		for i, t := range s.Targets {
			cpy.Targets[i] = *t.DeepCopy()
		}
	}
	return &cpy
}

// DeepCopy creates an independent copy of the SetpointTarget.
func (t *SetpointTarget) DeepCopy() *SetpointTarget {
	if t == nil {
		return nil
	}
	cpy := *t
	cpy.DayValue = cloneFloatPtr(t.DayValue)
	cpy.NightValue = cloneFloatPtr(t.NightValue)
	cpy.Min = cloneFloatPtr(t.Min)
	cpy.Max = cloneFloatPtr(t.Max)
	if t.Ramp != nil {
		r := *t.Ramp
		cpy.Ramp = &r
	}
	return &cpy
}

// cloneFloatPtr creates an independent copy of a *float64.
func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
