package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecipeCatalog is the interface the manager needs from the recipe
// store: version lookup for activation checks and the applied-status
// side effect after a successful activation.
type RecipeCatalog interface {
	Get(ctx context.Context, id string) (*recipe.Recipe, error)
	GetVersion(ctx context.Context, recipeID string, number int) (*recipe.Version, error)
	MarkApplied(ctx context.Context, recipeID string) error
}

// OverridePins is the interface the manager needs from the override
// manager: which parameters of a scope are pinned by an active override
// at or above a given precedence.
type OverridePins interface {
	ActivePinned(scope control.Scope, min control.Precedence) []control.Parameter
}

// systemActor names the core itself in audit events for transitions the
// tick driver performs.
const systemActor = "system"

// hoursPerDay converts recipe stage durations to wall-clock spans.
const hoursPerDay = 24

// Manager owns schedules, pending activations and batch groups.
//
// All public methods are thread-safe.
type Manager struct {
	repo      Repository
	recipes   RecipeCatalog
	overrides OverridePins
	ledger    audit.Recorder
	logger    Logger

	// now is the clock source; replaced in tests.
	now func() time.Time

	mu        sync.RWMutex
	schedules map[string]*Schedule  // by scope key
	pending   map[string]*Activation // by activation ID
	groups    map[string]*BatchGroup // by group ID
}

// NewManager creates a schedule manager.
func NewManager(repo Repository, recipes RecipeCatalog, overrides OverridePins, ledger audit.Recorder) *Manager {
	return &Manager{
		repo:      repo,
		recipes:   recipes,
		overrides: overrides,
		ledger:    ledger,
		logger:    noopLogger{},
		now:       time.Now,
		schedules: make(map[string]*Schedule),
		pending:   make(map[string]*Activation),
		groups:    make(map[string]*BatchGroup),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// RefreshCache reloads schedules, pending activations and batch groups
// from the repository. This should be called on application startup.
func (m *Manager) RefreshCache(ctx context.Context) error {
	schedules, err := m.repo.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}
	activations, err := m.repo.ListActivations(ctx)
	if err != nil {
		return fmt.Errorf("loading activations: %w", err)
	}
	groups, err := m.repo.ListBatchGroups(ctx)
	if err != nil {
		return fmt.Errorf("loading batch groups: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = make(map[string]*Schedule, len(schedules))
	for i := range schedules {
		s := schedules[i]
		m.schedules[s.Scope.Key()] = &s
	}
	m.pending = make(map[string]*Activation, len(activations))
	for i := range activations {
		a := activations[i]
		m.pending[a.ID] = &a
	}
	m.groups = make(map[string]*BatchGroup, len(groups))
	for i := range groups {
		g := groups[i]
		m.groups[g.ID] = &g
	}

	m.logger.Info("schedule cache refreshed",
		"schedules", len(schedules),
		"pending_activations", len(activations),
		"batch_groups", len(groups),
	)
	return nil
}

// CreateSchedule creates the timing configuration for a scope.
func (m *Manager) CreateSchedule(ctx context.Context, scope control.Scope, timezone string, dayStart, nightStart TimeOfDay, blackouts []BlackoutWindow) (*Schedule, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: invalid scope %q", ErrInvalidSchedule, scope.Key())
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, timezone, err)
	}
	if dayStart == nightStart {
		return nil, fmt.Errorf("%w: day start and night start coincide", ErrInvalidSchedule)
	}
	if err := checkWindowOverlaps(blackouts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[scope.Key()]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, scope.Key())
	}

	now := m.now().UTC()
	s := &Schedule{
		ID:         "sch-" + uuid.NewString()[:8],
		Scope:      scope,
		Timezone:   timezone,
		DayStart:   dayStart,
		NightStart: nightStart,
		Blackouts:  append([]BlackoutWindow(nil), blackouts...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.repo.SaveSchedule(ctx, s); err != nil {
		return nil, err
	}
	m.schedules[scope.Key()] = s

	m.logger.Info("schedule created",
		"scope", scope.Key(),
		"timezone", timezone,
		"day_start", dayStart.String(),
		"night_start", nightStart.String(),
	)
	return s.Copy(), nil
}

// GetSchedule returns the schedule for a scope.
func (m *Manager) GetSchedule(_ context.Context, scope control.Scope) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scope.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Copy(), nil
}

// ListSchedules returns all schedules.
func (m *Manager) ListSchedules(_ context.Context) []Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, *s.Copy())
	}
	return out
}

// AddBlackoutWindow appends a blackout window to a scope's schedule,
// rejecting overlaps with existing windows.
func (m *Manager) AddBlackoutWindow(ctx context.Context, scope control.Scope, w BlackoutWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scope.Key()]
	if !ok {
		return ErrNotFound
	}

	updated := s.Copy()
	updated.Blackouts = append(updated.Blackouts, w)
	if err := checkWindowOverlaps(updated.Blackouts); err != nil {
		return err
	}
	updated.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveSchedule(ctx, updated); err != nil {
		return err
	}
	m.schedules[scope.Key()] = updated

	m.logger.Info("blackout window added",
		"scope", scope.Key(),
		"start", w.Start.String(),
		"end", w.End.String(),
		"reason", w.Reason,
	)
	return nil
}

// RemoveBlackoutWindow deletes the blackout window at the given index.
func (m *Manager) RemoveBlackoutWindow(ctx context.Context, scope control.Scope, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scope.Key()]
	if !ok {
		return ErrNotFound
	}
	if index < 0 || index >= len(s.Blackouts) {
		return ErrWindowNotFound
	}

	updated := s.Copy()
	updated.Blackouts = append(updated.Blackouts[:index], updated.Blackouts[index+1:]...)
	updated.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveSchedule(ctx, updated); err != nil {
		return err
	}
	m.schedules[scope.Key()] = updated
	return nil
}

// ScheduleActivation schedules a published recipe version to become
// active on a scope at the given instant.
//
// Checks, in order: the version must be published and the recipe not
// deprecated; the activation instant's time-of-day (in the schedule's
// timezone) must not fall in a blackout window; and parameters of the
// recipe's first stage pinned by an active override with
// recipe-or-higher precedence are deferred, with an audited deferral
// event — the activation itself is still accepted.
func (m *Manager) ScheduleActivation(ctx context.Context, scope control.Scope, recipeID string, version int, activateAt time.Time, actor string) (*Activation, error) {
	rec, err := m.recipes.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if rec.Status == recipe.StatusDeprecated || rec.Status == recipe.StatusArchived {
		return nil, fmt.Errorf("%w: recipe %s is %s", recipe.ErrNotPublished, recipeID, rec.Status)
	}
	ver, err := m.recipes.GetVersion(ctx, recipeID, version)
	if err != nil {
		return nil, err
	}
	if !ver.Published {
		return nil, fmt.Errorf("%w: %s v%d", recipe.ErrNotPublished, recipeID, version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scope.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	// Blackout windows recur daily: only the time-of-day matters, not
	// the activation date.
	tod := TimeOfDayFrom(activateAt, loc)
	if w, hit := s.InBlackout(tod); hit {
		return nil, fmt.Errorf("%w: %s falls in %s-%s (%s)",
			ErrBlackoutConflict, tod.String(), w.Start.String(), w.End.String(), w.Reason)
	}

	deferred := m.pinnedFirstStageParams(scope, ver)

	now := m.now().UTC()
	a := &Activation{
		ID:         "act-" + uuid.NewString()[:8],
		Scope:      scope,
		RecipeID:   recipeID,
		Version:    version,
		ActivateAt: activateAt.UTC(),
		Deferred:   deferred,
		CreatedBy:  actor,
		CreatedAt:  now,
	}

	if err := m.repo.SaveActivation(ctx, a); err != nil {
		return nil, err
	}

	if _, err := m.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventScheduleActivation,
		Actor:  actor,
		Scope:  scope.Key(),
		Action: "activation scheduled",
		Metadata: map[string]any{
			"activation_id": a.ID,
			"recipe_id":     recipeID,
			"version":       version,
			"activate_at":   a.ActivateAt.Format(time.RFC3339),
		},
	}); err != nil {
		if delErr := m.repo.DeleteActivation(ctx, a.ID); delErr != nil {
			m.logger.Error("activation rollback failed", "activation_id", a.ID, "error", delErr)
		}
		return nil, err
	}

	if len(deferred) > 0 {
		// The deferral is informational: it never blocks the activation.
		if _, err := m.ledger.Append(ctx, &audit.Event{
			Type:   audit.EventScheduleActivation,
			Actor:  systemActor,
			Scope:  scope.Key(),
			Action: "activation deferred on pinned parameters",
			Reason: "active override with recipe-or-higher precedence",
			Metadata: map[string]any{
				"activation_id": a.ID,
				"parameters":    parameterStrings(deferred),
			},
		}); err != nil {
			m.logger.Error("deferral audit failed", "activation_id", a.ID, "error", err)
		}
	}

	m.pending[a.ID] = a

	m.logger.Info("activation scheduled",
		"activation_id", a.ID,
		"scope", scope.Key(),
		"recipe_id", recipeID,
		"version", version,
		"activate_at", a.ActivateAt.Format(time.RFC3339),
		"deferred", len(deferred),
	)
	return a.Copy(), nil
}

// CancelActivation withdraws a future-dated activation. An activation
// whose effective time has passed cannot be cancelled.
func (m *Manager) CancelActivation(ctx context.Context, id, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pending[id]
	if !ok {
		return ErrActivationNotFound
	}
	if !m.now().Before(a.ActivateAt) {
		return fmt.Errorf("%w: %s", ErrActivationPassed, a.ActivateAt.Format(time.RFC3339))
	}

	if err := m.repo.DeleteActivation(ctx, id); err != nil {
		return err
	}
	if _, err := m.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventScheduleActivation,
		Actor:  actor,
		Scope:  a.Scope.Key(),
		Action: "activation cancelled",
		Metadata: map[string]any{
			"activation_id": id,
			"recipe_id":     a.RecipeID,
		},
	}); err != nil {
		if saveErr := m.repo.SaveActivation(ctx, a); saveErr != nil {
			m.logger.Error("cancel rollback failed", "activation_id", id, "error", saveErr)
		}
		return err
	}

	delete(m.pending, id)
	m.logger.Info("activation cancelled", "activation_id", id, "scope", a.Scope.Key())
	return nil
}

// ListActivations returns all pending activations.
func (m *Manager) ListActivations(_ context.Context) []Activation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Activation, 0, len(m.pending))
	for _, a := range m.pending {
		out = append(out, *a.Copy())
	}
	return out
}

// ApplyDue applies every pending activation whose time has arrived.
// Run by the tick driver; the tick interval bounds activation accuracy.
// Returns the number of activations applied.
func (m *Manager) ApplyDue(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	applied := 0
	for id, a := range m.pending {
		if now.Before(a.ActivateAt) {
			continue
		}
		if err := m.applyLocked(ctx, a); err != nil {
			m.logger.Error("activation failed", "activation_id", id, "error", err)
			continue
		}
		delete(m.pending, id)
		applied++
	}
	return applied, nil
}

// applyLocked commits one due activation. Callers must hold m.mu.
func (m *Manager) applyLocked(ctx context.Context, a *Activation) error {
	s, ok := m.schedules[a.Scope.Key()]
	if !ok {
		return ErrNotFound
	}

	ver, err := m.recipes.GetVersion(ctx, a.RecipeID, a.Version)
	if err != nil {
		return err
	}

	// Recompute the pinned set at activation time: overrides may have
	// come or gone since scheduling.
	deferred := m.pinnedFirstStageParams(a.Scope, ver)

	prev := s.Copy()
	updated := s.Copy()
	activatedAt := a.ActivateAt
	updated.ActiveRecipeID = a.RecipeID
	updated.ActiveVersion = a.Version
	updated.ActivatedAt = &activatedAt
	updated.DeferredParams = deferred
	updated.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveSchedule(ctx, updated); err != nil {
		return err
	}
	if err := m.repo.DeleteActivation(ctx, a.ID); err != nil {
		return err
	}

	if _, err := m.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventScheduleActivation,
		Actor:  systemActor,
		Scope:  a.Scope.Key(),
		Action: "recipe activated",
		Metadata: map[string]any{
			"activation_id": a.ID,
			"recipe_id":     a.RecipeID,
			"version":       a.Version,
			"activated_at":  activatedAt.Format(time.RFC3339),
			"deferred":      parameterStrings(deferred),
		},
	}); err != nil {
		// Fail closed: restore the schedule and keep the activation
		// pending; the next tick retries.
		if revertErr := m.repo.SaveSchedule(ctx, prev); revertErr != nil {
			m.logger.Error("activation rollback failed", "activation_id", a.ID, "error", revertErr)
		}
		if revertErr := m.repo.SaveActivation(ctx, a); revertErr != nil {
			m.logger.Error("activation rollback failed", "activation_id", a.ID, "error", revertErr)
		}
		return err
	}

	m.schedules[a.Scope.Key()] = updated

	if err := m.recipes.MarkApplied(ctx, a.RecipeID); err != nil {
		m.logger.Warn("marking recipe applied failed", "recipe_id", a.RecipeID, "error", err)
	}

	m.logger.Info("recipe activated",
		"scope", a.Scope.Key(),
		"recipe_id", a.RecipeID,
		"version", a.Version,
		"deferred", len(deferred),
	)
	return nil
}

// ReleaseDeferrals clears deferred parameters whose pinning override
// has gone. Run by the tick driver alongside ApplyDue. Returns the
// number of parameters released.
func (m *Manager) ReleaseDeferrals(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for key, s := range m.schedules {
		if len(s.DeferredParams) == 0 {
			continue
		}

		pinned := make(map[control.Parameter]bool)
		for _, p := range m.overrides.ActivePinned(s.Scope, control.PrecedenceRecipe) {
			pinned[p] = true
		}

		var remaining, freed []control.Parameter
		for _, p := range s.DeferredParams {
			if pinned[p] {
				remaining = append(remaining, p)
			} else {
				freed = append(freed, p)
			}
		}
		if len(freed) == 0 {
			continue
		}

		updated := s.Copy()
		updated.DeferredParams = remaining
		updated.UpdatedAt = m.now().UTC()

		if err := m.repo.SaveSchedule(ctx, updated); err != nil {
			m.logger.Error("deferral release failed", "scope", key, "error", err)
			continue
		}
		if _, err := m.ledger.Append(ctx, &audit.Event{
			Type:   audit.EventScheduleActivation,
			Actor:  systemActor,
			Scope:  s.Scope.Key(),
			Action: "deferral released",
			Metadata: map[string]any{
				"parameters": parameterStrings(freed),
			},
		}); err != nil {
			m.logger.Error("deferral release audit failed", "scope", key, "error", err)
			continue
		}

		m.schedules[key] = updated
		released += len(freed)
	}
	return released, nil
}

// PeriodAt reports whether a scope is in its day or night period.
func (m *Manager) PeriodAt(scope control.Scope, at time.Time) (DayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scope.Key()]
	if !ok {
		return "", ErrNotFound
	}
	loc, err := s.Location()
	if err != nil {
		return "", err
	}
	return s.PeriodAt(TimeOfDayFrom(at, loc)), nil
}

// Position derives a scope's current stage and stage day from the
// activation timestamp and the cumulative stage durations.
func (m *Manager) Position(ctx context.Context, scope control.Scope, at time.Time) (*StagePosition, error) {
	m.mu.RLock()
	s, ok := m.schedules[scope.Key()]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	s = s.Copy()
	m.mu.RUnlock()

	if s.ActivatedAt == nil {
		return nil, ErrNoActiveRecipe
	}

	ver, err := m.recipes.GetVersion(ctx, s.ActiveRecipeID, s.ActiveVersion)
	if err != nil {
		return nil, err
	}

	elapsed := at.Sub(*s.ActivatedAt)
	if elapsed < 0 {
		return nil, fmt.Errorf("%w: activation is in the future", ErrNoActiveRecipe)
	}
	dayOffset := int(elapsed / (hoursPerDay * time.Hour))
	stage, stageDay, ok := ver.StageAt(dayOffset)
	if !ok {
		return nil, fmt.Errorf("%w: recipe complete", ErrNoActiveRecipe)
	}

	daysBefore := 0
	for _, st := range ver.Stages {
		if st.OrderIndex >= stage.OrderIndex {
			break
		}
		daysBefore += st.DurationDays
	}
	stageElapsed := elapsed - time.Duration(daysBefore)*hoursPerDay*time.Hour

	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	return &StagePosition{
		RecipeID: s.ActiveRecipeID,
		Version:  s.ActiveVersion,
		Stage:    *stage.DeepCopy(),
		StageDay: stageDay,
		Period:   s.PeriodAt(TimeOfDayFrom(at, loc)),
		Elapsed:  stageElapsed,
	}, nil
}

// ActiveTarget returns the recipe candidate context for one pair, or
// (nil, false) when the scope's recipe has no opinion: no schedule, no
// active recipe, recipe complete, parameter deferred, or the current
// stage sets no target for the parameter.
func (m *Manager) ActiveTarget(ctx context.Context, scope control.Scope, p control.Parameter, at time.Time) (*TargetContext, bool) {
	if m.IsDeferred(scope, p) {
		return nil, false
	}

	pos, err := m.Position(ctx, scope, at)
	if err != nil {
		return nil, false
	}
	target, ok := pos.Stage.Target(p)
	if !ok {
		return nil, false
	}

	return &TargetContext{
		Target:       *target.DeepCopy(),
		Period:       pos.Period,
		Stage:        pos.Stage.Type,
		StageDay:     pos.StageDay,
		StageElapsed: pos.Elapsed,
	}, true
}

// IsDeferred reports whether a parameter is deferred on a scope.
func (m *Manager) IsDeferred(scope control.Scope, p control.Parameter) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scope.Key()]
	if !ok {
		return false
	}
	for _, dp := range s.DeferredParams {
		if dp == p {
			return true
		}
	}
	return false
}

// CreateBatchGroup creates a named collection of pods sharing a recipe
// activation. Activations target the group's scope.
func (m *Manager) CreateBatchGroup(ctx context.Context, name string, podIDs []string, actor string) (*BatchGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if len(podIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one pod is required", ErrInvalidSchedule)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g := &BatchGroup{
		ID:        "grp-" + uuid.NewString()[:8],
		Name:      name,
		PodIDs:    append([]string(nil), podIDs...),
		CreatedAt: m.now().UTC(),
	}
	if err := m.repo.SaveBatchGroup(ctx, g); err != nil {
		return nil, err
	}
	m.groups[g.ID] = g

	m.logger.Info("batch group created", "group_id", g.ID, "name", name, "pods", len(podIDs), "actor", actor)
	return g.Copy(), nil
}

// GetBatchGroup returns a batch group by ID.
func (m *Manager) GetBatchGroup(_ context.Context, id string) (*BatchGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g.Copy(), nil
}

// ListBatchGroups returns all batch groups.
func (m *Manager) ListBatchGroups(_ context.Context) []BatchGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BatchGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, *g.Copy())
	}
	return out
}

// pinnedFirstStageParams intersects the first stage's parameters with
// those pinned by an active override at recipe-or-higher precedence.
func (m *Manager) pinnedFirstStageParams(scope control.Scope, ver *recipe.Version) []control.Parameter {
	if len(ver.Stages) == 0 {
		return nil
	}
	pinned := make(map[control.Parameter]bool)
	for _, p := range m.overrides.ActivePinned(scope, control.PrecedenceRecipe) {
		pinned[p] = true
	}
	var deferred []control.Parameter
	for _, t := range ver.Stages[0].Targets {
		if pinned[t.Parameter] {
			deferred = append(deferred, t.Parameter)
		}
	}
	return deferred
}

// checkWindowOverlaps rejects any pair of overlapping windows.
func checkWindowOverlaps(windows []BlackoutWindow) error {
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if windows[i].Overlaps(windows[j]) {
				return fmt.Errorf("%w: %s-%s and %s-%s",
					ErrWindowOverlap,
					windows[i].Start.String(), windows[i].End.String(),
					windows[j].Start.String(), windows[j].End.String())
			}
		}
	}
	return nil
}

// parameterStrings converts parameters to strings for audit metadata.
func parameterStrings(params []control.Parameter) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = string(p)
	}
	return out
}
