package recipe

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxNameLength  = 100
	maxNotesLength = 500
	maxStages      = 20
	maxRampMinutes = 7 * 24 * 60 // one week
)

// Severity classifies a validation issue.
type Severity string

const (
	// SeverityError blocks both save-as-draft and publish.
	SeverityError Severity = "error"

	// SeverityWarning is surfaced to the caller but never blocks.
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any issue is error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a recipe name and version against the store's rules.
// It returns every finding, warnings included; callers decide whether
// warnings block (they never do for save or publish).
func Validate(name string, v *Version) []Issue {
	var issues []Issue

	if strings.TrimSpace(name) == "" {
		issues = append(issues, Issue{SeverityError, "name", "name is required"})
	} else if len(name) > maxNameLength {
		issues = append(issues, Issue{SeverityError, "name",
			fmt.Sprintf("name exceeds %d characters", maxNameLength)})
	}

	if v == nil || len(v.Stages) == 0 {
		issues = append(issues, Issue{SeverityError, "stages", "at least one stage is required"})
		return issues
	}
	if len(v.Stages) > maxStages {
		issues = append(issues, Issue{SeverityError, "stages",
			fmt.Sprintf("exceeds maximum of %d stages", maxStages)})
	}
	if len(v.Notes) > maxNotesLength {
		issues = append(issues, Issue{SeverityError, "notes",
			fmt.Sprintf("notes exceed %d characters", maxNotesLength)})
	}

	for i, stage := range v.Stages {
		issues = append(issues, validateStage(i, stage)...)
	}
	return issues
}

// validateStage checks one stage and its setpoint targets.
func validateStage(index int, s Stage) []Issue {
	var issues []Issue
	field := func(sub string) string { return fmt.Sprintf("stages[%d].%s", index, sub) }

	if !s.Type.Valid() {
		issues = append(issues, Issue{SeverityError, field("type"),
			fmt.Sprintf("unknown stage type %q", s.Type)})
	}
	if s.DurationDays <= 0 {
		issues = append(issues, Issue{SeverityError, field("duration_days"),
			"stage duration must be greater than zero"})
	}

	seen := make(map[string]bool, len(s.Targets))
	for j, t := range s.Targets {
		tf := func(sub string) string { return fmt.Sprintf("stages[%d].targets[%d].%s", index, j, sub) }

		if !t.Parameter.Valid() {
			issues = append(issues, Issue{SeverityError, tf("parameter"),
				fmt.Sprintf("unknown parameter %q", t.Parameter)})
			continue
		}
		if seen[string(t.Parameter)] {
			// Duplicate target for one parameter: conflicting setpoints.
			// The first target wins; this does not block save or publish.
			issues = append(issues, Issue{SeverityWarning, tf("parameter"),
				fmt.Sprintf("conflicting setpoints: duplicate %s target", t.Parameter)})
		}
		seen[string(t.Parameter)] = true

		issues = append(issues, validateTarget(tf, t)...)
	}
	return issues
}

// validateTarget checks one setpoint target's bounds, deadband and ramp.
func validateTarget(field func(string) string, t SetpointTarget) []Issue {
	var issues []Issue

	if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
		issues = append(issues, Issue{SeverityError, field("min"),
			fmt.Sprintf("min %v exceeds max %v", *t.Min, *t.Max)})
	}

	checkBounds := func(name string, value float64) {
		if t.Min != nil && value < *t.Min {
			issues = append(issues, Issue{SeverityError, field(name),
				fmt.Sprintf("%s %v below min %v", name, value, *t.Min)})
		}
		if t.Max != nil && value > *t.Max {
			issues = append(issues, Issue{SeverityError, field(name),
				fmt.Sprintf("%s %v above max %v", name, value, *t.Max)})
		}
	}

	checkBounds("value", t.Value)
	if t.DayValue != nil {
		checkBounds("day_value", *t.DayValue)
	}
	if t.NightValue != nil {
		checkBounds("night_value", *t.NightValue)
	}

	if t.Deadband < 0 {
		issues = append(issues, Issue{SeverityError, field("deadband"),
			"deadband must not be negative"})
	}

	if t.Ramp != nil {
		if t.Ramp.DurationMinutes <= 0 || t.Ramp.DurationMinutes > maxRampMinutes {
			issues = append(issues, Issue{SeverityError, field("ramp.duration_minutes"),
				fmt.Sprintf("ramp duration must be 1-%d minutes", maxRampMinutes)})
		}
		if t.Ramp.StartPercent < 0 || t.Ramp.EndPercent < 0 {
			issues = append(issues, Issue{SeverityError, field("ramp"),
				"ramp percentages must not be negative"})
		}
	}
	return issues
}
