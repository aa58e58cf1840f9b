package arbiter

import (
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// Signal is a scope-addressed safety or e-stop condition pushed by an
// external collaborator. While active, it is the highest-ranked
// candidate for its pair. A signal with an empty Parameter applies to
// every parameter of the scope.
type Signal struct {
	Scope     control.Scope     `json:"scope"`
	Parameter control.Parameter `json:"parameter,omitempty"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Reason    string            `json:"reason"`
	Source    string            `json:"source"`
	RaisedAt  time.Time         `json:"raised_at"`
}

// Directive is a demand-response suggestion with a validity window.
// It is the lowest-ranked candidate source.
type Directive struct {
	ID        string            `json:"id"`
	Scope     control.Scope     `json:"scope"`
	Parameter control.Parameter `json:"parameter"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	NotBefore time.Time         `json:"not_before"`
	NotAfter  time.Time         `json:"not_after"`
	Reason    string            `json:"reason"`
	Actor     string            `json:"actor"`
	CreatedAt time.Time         `json:"created_at"`
}

// InWindow reports whether the directive is valid at t.
func (d *Directive) InWindow(t time.Time) bool {
	return !t.Before(d.NotBefore) && t.Before(d.NotAfter)
}

// Copy returns a deep copy of the directive.
func (d *Directive) Copy() *Directive {
	dup := *d
	return &dup
}

// Candidate is one source's opinion for a pair.
type Candidate struct {
	Source control.Precedence `json:"source"`
	Value  float64            `json:"value"`
	Unit   string             `json:"unit,omitempty"`
	Detail string             `json:"detail,omitempty"`
}

// Decision is the arbitration outcome for one pair: the winning value
// and source, plus every shadowed lower-precedence candidate.
type Decision struct {
	Scope      control.Scope      `json:"scope"`
	Parameter  control.Parameter  `json:"parameter"`
	Value      float64            `json:"value"`
	Unit       string             `json:"unit,omitempty"`
	Source     control.Precedence `json:"source"`
	Detail     string             `json:"detail,omitempty"`
	Shadowed   []Candidate        `json:"shadowed,omitempty"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// SourceName returns the wire name of the winning source.
func (d *Decision) SourceName() string {
	return d.Source.String()
}
