package override

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
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

// systemActor names the core itself in audit events for transitions it
// performs on its own (expiry, preemption, safety blocking).
const systemActor = "system"

// stripeCount is the number of pair-key mutex stripes. Mutation of a
// single (scope, parameter) pair always lands on the same stripe;
// unrelated pairs almost always land on different ones.
const stripeCount = 32

// Manager owns the override lifecycle for all scopes.
//
// All public methods are thread-safe. Transitions on one pair are
// serialised by a striped mutex; the registry maps are guarded
// separately so reads (ActiveFor, Get) never wait on a transition in
// another stripe.
type Manager struct {
	repo   Repository
	ledger audit.Recorder
	logger Logger

	// now is the clock source; replaced in tests.
	now func() time.Time

	stripes [stripeCount]sync.Mutex

	mu     sync.RWMutex
	active map[string]*Override // by pair key, status Active only
	all    map[string]*Override // by override ID
}

// NewManager creates an override manager over the given repository and
// audit ledger.
func NewManager(repo Repository, ledger audit.Recorder) *Manager {
	return &Manager{
		repo:   repo,
		ledger: ledger,
		logger: noopLogger{},
		now:    time.Now,
		active: make(map[string]*Override),
		all:    make(map[string]*Override),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// RefreshCache reloads active overrides from the repository.
// This should be called on application startup.
func (m *Manager) RefreshCache(ctx context.Context) error {
	actives, err := m.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active overrides: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[string]*Override, len(actives))
	m.all = make(map[string]*Override, len(actives))
	for i := range actives {
		o := actives[i]
		m.active[o.PairKey()] = &o
		m.all[o.ID] = &o
	}
	m.logger.Info("override cache refreshed", "active", len(actives))
	return nil
}

// stripe returns the mutex serialising mutations of the given pair key.
func (m *Manager) stripe(pairKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pairKey))
	return &m.stripes[h.Sum32()%stripeCount]
}

// Request validates and activates a new override.
//
// A valid request transitions Requested -> Active immediately. If an
// active override already pins the same pair, the request is rejected
// with ErrPreemptionRequired unless its precedence is strictly higher,
// in which case the incumbent is force-reverted by the system (with an
// audit event citing the preemption) before the new override activates.
func (m *Manager) Request(ctx context.Context, req Request) (*Override, error) {
	if req.Precedence == 0 {
		req.Precedence = control.PrecedenceManual
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	pairKey := control.PairKey(req.Scope, req.Parameter)
	lock := m.stripe(pairKey)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	incumbent := m.active[pairKey]
	m.mu.RUnlock()

	if incumbent != nil {
		if !req.Precedence.Outranks(incumbent.Precedence) {
			return nil, fmt.Errorf("%w: %s held by %s override %s",
				ErrPreemptionRequired, pairKey, incumbent.Precedence, incumbent.ID)
		}
		// The system performs the preemption, not the requester.
		if err := m.transitionLocked(ctx, incumbent, StatusReverted,
			"preempted by higher precedence",
			fmt.Sprintf("superseded by %s request from %s", req.Precedence, req.Actor),
			systemActor, nil); err != nil {
			return nil, err
		}
	}

	now := m.now().UTC()
	o := &Override{
		ID:            "ovr-" + uuid.NewString()[:8],
		Scope:         req.Scope,
		Parameter:     req.Parameter,
		CurrentValue:  req.CurrentValue,
		OverrideValue: req.OverrideValue,
		Unit:          req.Unit,
		TTLSeconds:    req.TTLSeconds,
		Reason:        req.Reason,
		Actor:         req.Actor,
		Precedence:    req.Precedence,
		Status:        StatusRequested,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(req.TTLSeconds) * time.Second),
	}

	// Validation passed: Requested -> Active.
	o.Status = StatusActive

	if err := m.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	if _, err := m.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventOverride,
		Actor:  req.Actor,
		Scope:  req.Scope.Key(),
		Action: "override activated",
		Reason: req.Reason,
		Metadata: map[string]any{
			"override_id": o.ID,
			"parameter":   string(o.Parameter),
			"value":       o.OverrideValue,
			"ttl_seconds": o.TTLSeconds,
			"precedence":  o.Precedence.String(),
			"expires_at":  o.ExpiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		// Fail closed: no durable audit record, no override.
		if delErr := m.repo.Delete(ctx, o.ID); delErr != nil {
			m.logger.Error("override rollback failed", "override_id", o.ID, "error", delErr)
		}
		return nil, err
	}

	m.mu.Lock()
	m.active[pairKey] = o
	m.all[o.ID] = o
	m.mu.Unlock()

	m.logger.Info("override activated",
		"override_id", o.ID,
		"scope", req.Scope.Key(),
		"parameter", string(req.Parameter),
		"value", req.OverrideValue,
		"ttl_seconds", req.TTLSeconds,
		"precedence", req.Precedence.String(),
	)
	return o.Copy(), nil
}

// Cancel reverts an active override at the requester's initiative.
// Cancelling an already-terminal override returns ErrStaleTransition.
func (m *Manager) Cancel(ctx context.Context, id, actor string) error {
	return m.transitionByID(ctx, id, StatusReverted, "override cancelled", "", actor)
}

// Expire reverts an active override whose TTL has elapsed. Called by
// the sweeper; exposed for tests and for integrations that run their
// own driver.
func (m *Manager) Expire(ctx context.Context, id string) error {
	return m.transitionByID(ctx, id, StatusReverted, "override expired", "TTL elapsed", systemActor)
}

// Escalate marks an active override as escalated to a
// higher-precedence actor. The escalation policy lives outside this
// package; only the transition is exposed here.
func (m *Manager) Escalate(ctx context.Context, id, actor, reason string) error {
	return m.transitionByID(ctx, id, StatusEscalated, "override escalated", reason, actor)
}

// Block marks an active override as blocked by a safety or e-stop
// signal. The safety signal always wins; the override is marked, never
// silently dropped.
func (m *Manager) Block(ctx context.Context, id, reason string) error {
	return m.transitionByID(ctx, id, StatusBlocked, "override blocked", reason, systemActor)
}

// BlockScope blocks active overrides within a scope. Called when a
// safety interlock or e-stop signal arrives. A non-empty parameter
// narrows the block to that pair, matching a pair-specific signal;
// an empty parameter blocks the whole scope. Returns the number of
// overrides blocked.
func (m *Manager) BlockScope(ctx context.Context, scope control.Scope, p control.Parameter, reason string) (int, error) {
	m.mu.RLock()
	var ids []string
	for _, o := range m.active {
		if o.Scope != scope {
			continue
		}
		if p != "" && o.Parameter != p {
			continue
		}
		ids = append(ids, o.ID)
	}
	m.mu.RUnlock()

	blocked := 0
	for _, id := range ids {
		err := m.Block(ctx, id, reason)
		switch {
		case err == nil:
			blocked++
		case isStale(err):
			// Lost a race with expiry or cancellation; already terminal.
		default:
			return blocked, err
		}
	}
	return blocked, nil
}

// Sweep expires every active override whose expiry time has passed.
// Returns the number of overrides reverted. Races with concurrent
// cancellations resolve via CAS; the sweep side simply loses.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()

	m.mu.RLock()
	var due []string
	for _, o := range m.active {
		if !now.Before(o.ExpiresAt) {
			due = append(due, o.ID)
		}
	}
	m.mu.RUnlock()

	expired := 0
	for _, id := range due {
		err := m.Expire(ctx, id)
		switch {
		case err == nil:
			expired++
		case isStale(err):
		default:
			return expired, err
		}
	}
	return expired, nil
}

// ActiveFor returns the active override for a pair, if any.
func (m *Manager) ActiveFor(scope control.Scope, p control.Parameter) (*Override, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.active[control.PairKey(scope, p)]
	if !ok {
		return nil, false
	}
	return o.Copy(), true
}

// ActivePinned returns the parameters within a scope pinned by an
// active override at or above the given precedence. Used by the
// schedule manager to defer recipe activation on pinned parameters.
func (m *Manager) ActivePinned(scope control.Scope, min control.Precedence) []control.Parameter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pinned []control.Parameter
	for _, o := range m.active {
		if o.Scope == scope && o.Precedence >= min {
			pinned = append(pinned, o.Parameter)
		}
	}
	return pinned
}

// Get returns an override by ID. Terminal overrides drop out of the
// cache across restarts, so a miss falls through to the repository.
func (m *Manager) Get(ctx context.Context, id string) (*Override, error) {
	m.mu.RLock()
	o, ok := m.all[id]
	m.mu.RUnlock()
	if ok {
		return o.Copy(), nil
	}
	return m.repo.Get(ctx, id)
}

// ListActive returns all currently active overrides.
func (m *Manager) ListActive(_ context.Context) []Override {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Override, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o.Copy())
	}
	return out
}

// History returns recent overrides for a scope, newest first,
// straight from the repository.
func (m *Manager) History(ctx context.Context, scope control.Scope, limit int) ([]Override, error) {
	return m.repo.ListByScope(ctx, scope.Key(), limit)
}

// transitionByID resolves an override and applies a terminal CAS
// transition under its pair's stripe lock.
func (m *Manager) transitionByID(ctx context.Context, id string, to Status, action, reason, actor string) error {
	m.mu.RLock()
	o, ok := m.all[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	lock := m.stripe(o.PairKey())
	lock.Lock()
	defer lock.Unlock()
	return m.transitionLocked(ctx, o, to, action, reason, actor, nil)
}

// transitionLocked applies a terminal transition. The caller must hold
// the stripe lock for the override's pair.
//
// The compare-and-set discipline lives here: the transition only
// proceeds from Active, so exactly one terminal transition ever wins,
// and the audit trail records which one. A failed audit append rolls
// the transition back (fail closed).
func (m *Manager) transitionLocked(ctx context.Context, o *Override, to Status, action, reason, actor string, extra map[string]any) error {
	if o.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrStaleTransition, o.ID, o.Status)
	}
	if !to.Terminal() {
		return fmt.Errorf("override: invalid transition to %s", to)
	}

	now := m.now().UTC()
	prevStatus := o.Status
	o.Status = to
	var prevReverted *time.Time
	if to == StatusReverted {
		prevReverted = o.RevertedAt
		o.RevertedAt = &now
	}

	revert := func() {
		o.Status = prevStatus
		o.RevertedAt = prevReverted
	}

	if err := m.repo.UpdateStatus(ctx, o.ID, to, o.RevertedAt); err != nil {
		revert()
		return err
	}

	metadata := map[string]any{
		"override_id": o.ID,
		"parameter":   string(o.Parameter),
		"status":      string(to),
		"precedence":  o.Precedence.String(),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	if _, err := m.ledger.Append(ctx, &audit.Event{
		Type:     audit.EventOverride,
		Actor:    actor,
		Scope:    o.Scope.Key(),
		Action:   action,
		Reason:   reason,
		Metadata: metadata,
	}); err != nil {
		revert()
		if undoErr := m.repo.UpdateStatus(ctx, o.ID, prevStatus, prevReverted); undoErr != nil {
			m.logger.Error("transition rollback failed", "override_id", o.ID, "error", undoErr)
		}
		return err
	}

	m.mu.Lock()
	if m.active[o.PairKey()] == o {
		delete(m.active, o.PairKey())
	}
	m.mu.Unlock()

	m.logger.Info(action,
		"override_id", o.ID,
		"scope", o.Scope.Key(),
		"parameter", string(o.Parameter),
		"status", string(to),
		"actor", actor,
	)
	return nil
}

// validateRequest checks a request's fields before any state changes.
func validateRequest(req Request) error {
	if !req.Scope.Valid() {
		return fmt.Errorf("%w: invalid scope %q", ErrInvalidRequest, req.Scope.Key())
	}
	if !req.Parameter.Valid() {
		return fmt.Errorf("%w: invalid parameter %q", ErrInvalidRequest, req.Parameter)
	}
	if req.Reason == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidRequest)
	}
	if req.TTLSeconds <= 0 {
		return fmt.Errorf("%w: ttl_seconds must be greater than zero", ErrInvalidRequest)
	}
	if !req.Precedence.Valid() {
		return fmt.Errorf("%w: invalid precedence", ErrInvalidRequest)
	}
	return nil
}

// isStale reports whether err is a benign CAS loss.
func isStale(err error) bool {
	return errors.Is(err, ErrStaleTransition)
}
