package arbiter

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/override"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/schedule"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OverrideView is the read side of the override manager the engine
// consumes: the active override for a pair, if any.
type OverrideView interface {
	ActiveFor(scope control.Scope, p control.Parameter) (*override.Override, bool)
}

// RecipeView is the read side of the schedule manager: the active
// recipe's target for a pair, with day/night and stage context.
type RecipeView interface {
	ActiveTarget(ctx context.Context, scope control.Scope, p control.Parameter, at time.Time) (*schedule.TargetContext, bool)
}

// Publisher delivers resolved targets to the outside, normally over
// MQTT. Publication failures are logged, never propagated: equipment
// reconciles on the next publish.
type Publisher interface {
	PublishTarget(ctx context.Context, d Decision) error
}

// TelemetryReader supplies the last measured value for a pair, used
// only to gate same-source re-publication on the deadband. A reader
// returning ok=false disables the gate for that pair.
type TelemetryReader interface {
	LastMeasured(ctx context.Context, scope control.Scope, p control.Parameter) (float64, bool)
}

const systemActor = "system"

// Engine merges candidates from every control source and emits the
// effective setpoint per pair.
//
// All public methods are thread-safe.
type Engine struct {
	safety    *SignalBoard
	estop     *SignalBoard
	dr        *DirectiveBoard
	overrides OverrideView
	recipes   RecipeView
	ledger    audit.Recorder
	publisher Publisher
	telemetry TelemetryReader
	logger    Logger

	// now is the clock source; replaced in tests.
	now func() time.Time

	mu    sync.RWMutex
	last  map[string]Decision // pair key -> last published decision
	pairs map[string]pairRef  // pairs to re-evaluate each tick
}

type pairRef struct {
	scope control.Scope
	param control.Parameter
}

// NewEngine creates an arbitration engine. publisher and telemetry may
// be nil: without a publisher decisions are audit-only, without
// telemetry the deadband gate is disabled.
func NewEngine(safety, estop *SignalBoard, dr *DirectiveBoard, overrides OverrideView, recipes RecipeView, ledger audit.Recorder) *Engine {
	return &Engine{
		safety:    safety,
		estop:     estop,
		dr:        dr,
		overrides: overrides,
		recipes:   recipes,
		ledger:    ledger,
		logger:    noopLogger{},
		now:       time.Now,
		last:      make(map[string]Decision),
		pairs:     make(map[string]pairRef),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetPublisher sets the target publisher.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetTelemetry sets the telemetry reader for deadband gating.
func (e *Engine) SetTelemetry(t TelemetryReader) {
	e.telemetry = t
}

// Track registers pairs for periodic re-evaluation. Pairs are also
// registered implicitly by every ResolveEffective call.
func (e *Engine) Track(scope control.Scope, params ...control.Parameter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range params {
		e.pairs[control.PairKey(scope, p)] = pairRef{scope: scope, param: p}
	}
}

// ResolveEffective computes the effective setpoint for one pair. It
// reads only committed state and is idempotent for a fixed snapshot.
// ok is false when no source has an opinion; that is not an error, the
// equipment idles.
//
// A change of winning source or value against the previous resolution
// of the same pair appends a setpoint_update audit event and publishes
// the target.
func (e *Engine) ResolveEffective(ctx context.Context, scope control.Scope, p control.Parameter) (Decision, bool) {
	now := e.now()
	candidates := e.collect(ctx, scope, p, now)

	key := control.PairKey(scope, p)
	e.mu.Lock()
	e.pairs[key] = pairRef{scope: scope, param: p}
	prev, hadPrev := e.last[key]
	e.mu.Unlock()

	if len(candidates) == 0 {
		if hadPrev {
			e.recordCleared(ctx, scope, p, prev)
		}
		return Decision{}, false
	}

	d := Decision{
		Scope:      scope,
		Parameter:  p,
		Value:      candidates[0].Value,
		Unit:       candidates[0].Unit,
		Source:     candidates[0].Source,
		Detail:     candidates[0].Detail,
		Shadowed:   candidates[1:],
		ResolvedAt: now.UTC(),
	}

	switch {
	case !hadPrev || prev.Source != d.Source:
		e.recordChange(ctx, prev, hadPrev, d)
	case prev.Value != d.Value:
		// Same source drifting (ramps, day/night flips). Publication is
		// gated on the deadband; arbitration correctness is not.
		if e.deviationExceedsDeadband(ctx, scope, p, d.Value) {
			e.recordChange(ctx, prev, hadPrev, d)
		} else {
			e.remember(key, d)
		}
	default:
		e.remember(key, d)
	}

	return d, true
}

// ResolveScope resolves every parameter for a scope, skipping pairs
// with no opinion.
func (e *Engine) ResolveScope(ctx context.Context, scope control.Scope) []Decision {
	var out []Decision
	for _, p := range control.AllParameters() {
		if d, ok := e.ResolveEffective(ctx, scope, p); ok {
			out = append(out, d)
		}
	}
	return out
}

// Reevaluate re-resolves every tracked pair. Run by the tick driver so
// winner changes from expiries, signal clears and ramp progress surface
// without an external query. Returns the number of pairs evaluated.
func (e *Engine) Reevaluate(ctx context.Context) (int, error) {
	e.mu.RLock()
	refs := make([]pairRef, 0, len(e.pairs))
	for _, ref := range e.pairs {
		refs = append(refs, ref)
	}
	e.mu.RUnlock()

	for _, ref := range refs {
		e.ResolveEffective(ctx, ref.scope, ref.param)
	}
	return len(refs), nil
}

// collect gathers candidates in strict precedence order.
func (e *Engine) collect(ctx context.Context, scope control.Scope, p control.Parameter, now time.Time) []Candidate {
	var out []Candidate

	if sig, ok := e.safety.Active(scope, p); ok {
		out = append(out, Candidate{
			Source: control.PrecedenceSafety,
			Value:  sig.Value,
			Unit:   sig.Unit,
			Detail: sig.Reason,
		})
	}
	if sig, ok := e.estop.Active(scope, p); ok {
		out = append(out, Candidate{
			Source: control.PrecedenceEStop,
			Value:  sig.Value,
			Unit:   sig.Unit,
			Detail: sig.Reason,
		})
	}
	if o, ok := e.overrides.ActiveFor(scope, p); ok {
		out = append(out, Candidate{
			Source: control.PrecedenceManual,
			Value:  o.OverrideValue,
			Unit:   o.Unit,
			Detail: o.ID,
		})
	}
	if tc, ok := e.recipes.ActiveTarget(ctx, scope, p, now); ok {
		out = append(out, Candidate{
			Source: control.PrecedenceRecipe,
			Value:  recipeValue(tc),
			Unit:   tc.Target.Unit,
			Detail: string(tc.Stage),
		})
	}
	if d, ok := e.dr.Active(scope, p, now); ok {
		out = append(out, Candidate{
			Source: control.PrecedenceDemandResponse,
			Value:  d.Value,
			Unit:   d.Unit,
			Detail: d.ID,
		})
	}
	return out
}

// recipeValue renders a stage target: day/night selection, ramp
// interpolation across the stage's ramp window, then min/max clamping.
func recipeValue(tc *schedule.TargetContext) float64 {
	t := tc.Target

	value := t.Value
	if tc.Period == schedule.PeriodDay && t.DayValue != nil {
		value = *t.DayValue
	} else if tc.Period == schedule.PeriodNight && t.NightValue != nil {
		value = *t.NightValue
	}

	if t.Ramp != nil && t.Ramp.DurationMinutes > 0 {
		value = applyRamp(value, *t.Ramp, tc.StageElapsed)
	}

	if t.Min != nil && value < *t.Min {
		value = *t.Min
	}
	if t.Max != nil && value > *t.Max {
		value = *t.Max
	}
	return value
}

// applyRamp scales the base value from start% to end% linearly over the
// ramp window at the head of the stage, holding end% afterwards.
func applyRamp(base float64, r recipe.Ramp, elapsed time.Duration) float64 {
	window := time.Duration(r.DurationMinutes) * time.Minute
	frac := float64(elapsed) / float64(window)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	percent := r.StartPercent + (r.EndPercent-r.StartPercent)*frac
	return base * percent / 100
}

// deviationExceedsDeadband reports whether the measured value deviates
// from the new target by at least the target's deadband. Without a
// telemetry reader or a reading the gate is open.
func (e *Engine) deviationExceedsDeadband(ctx context.Context, scope control.Scope, p control.Parameter, target float64) bool {
	if e.telemetry == nil {
		return true
	}
	tc, ok := e.recipes.ActiveTarget(ctx, scope, p, e.now())
	if !ok || tc.Target.Deadband <= 0 {
		return true
	}
	measured, ok := e.telemetry.LastMeasured(ctx, scope, p)
	if !ok {
		return true
	}
	return math.Abs(measured-target) >= tc.Target.Deadband
}

// recordChange commits a winner change: audit, then remember and
// publish. A failed audit append aborts the commit, so the pair is not
// remembered or published and the next evaluation retries the append.
func (e *Engine) recordChange(ctx context.Context, prev Decision, hadPrev bool, d Decision) {
	meta := map[string]any{
		"parameter":  string(d.Parameter),
		"new_value":  d.Value,
		"new_source": d.Source.String(),
	}
	if hadPrev {
		meta["old_value"] = prev.Value
		meta["old_source"] = prev.Source.String()
	}
	if _, err := e.ledger.Append(ctx, &audit.Event{
		Type:     audit.EventSetpointUpdate,
		Actor:    systemActor,
		Scope:    d.Scope.Key(),
		Action:   "effective setpoint changed",
		Metadata: meta,
	}); err != nil {
		e.logger.Error("setpoint audit failed, change not published",
			"scope", d.Scope.Key(), "parameter", string(d.Parameter), "error", err)
		return
	}

	e.remember(control.PairKey(d.Scope, d.Parameter), d)
	e.publish(ctx, d)

	e.logger.Info("effective setpoint changed",
		"scope", d.Scope.Key(),
		"parameter", string(d.Parameter),
		"value", d.Value,
		"source", d.Source.String(),
	)
}

// recordCleared commits the transition to no effective setpoint. The
// previous decision is forgotten only once the audit record is durable;
// a failed append leaves it in place so the next evaluation retries.
func (e *Engine) recordCleared(ctx context.Context, scope control.Scope, p control.Parameter, prev Decision) {
	if _, err := e.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventSetpointUpdate,
		Actor:  systemActor,
		Scope:  scope.Key(),
		Action: "effective setpoint cleared",
		Metadata: map[string]any{
			"parameter":  string(p),
			"old_value":  prev.Value,
			"old_source": prev.Source.String(),
		},
	}); err != nil {
		e.logger.Error("setpoint audit failed",
			"scope", scope.Key(), "parameter", string(p), "error", err)
		return
	}

	e.mu.Lock()
	delete(e.last, control.PairKey(scope, p))
	e.mu.Unlock()

	e.logger.Info("effective setpoint cleared",
		"scope", scope.Key(), "parameter", string(p))
}

func (e *Engine) remember(key string, d Decision) {
	e.mu.Lock()
	e.last[key] = d
	e.mu.Unlock()
}

func (e *Engine) publish(ctx context.Context, d Decision) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishTarget(ctx, d); err != nil {
		e.logger.Warn("target publish failed",
			"scope", d.Scope.Key(), "parameter", string(d.Parameter), "error", err)
	}
}
