package override

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// memoryRepo is an in-memory Repository for tests.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]Override
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]Override)}
}

func (r *memoryRepo) Create(_ context.Context, o *Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[o.ID] = *o.Copy()
	return nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, status Status, revertedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.RevertedAt = revertedAt
	r.rows[id] = o
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (*Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Copy(), nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) ListActive(_ context.Context) ([]Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Override{}
	for _, o := range r.rows {
		if o.Status == StatusActive {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByScope(_ context.Context, scopeKey string, _ int) ([]Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Override{}
	for _, o := range r.rows {
		if o.Scope.Key() == scopeKey {
			out = append(out, o)
		}
	}
	return out, nil
}

// failingRecorder always fails to append.
type failingRecorder struct{}

func (failingRecorder) Append(context.Context, *audit.Event) (string, error) {
	return "", errors.New("ledger unavailable")
}

var podA = control.Scope{Kind: control.ScopePod, ID: "pod-a"}

func newTestManager(t *testing.T) (*Manager, *memoryRepo, *audit.MemoryRepository) {
	t.Helper()
	repo := newMemoryRepo()
	auditRepo := audit.NewMemoryRepository()
	ledger := audit.NewLedger(auditRepo)
	if err := ledger.Load(context.Background()); err != nil {
		t.Fatalf("loading ledger: %v", err)
	}
	return NewManager(repo, ledger), repo, auditRepo
}

func validRequest() Request {
	return Request{
		Scope:         podA,
		Parameter:     control.ParamTemperature,
		OverrideValue: 24.5,
		Unit:          "C",
		TTLSeconds:    600,
		Reason:        "frost inspection",
		Actor:         "grower-1",
	}
}

// =============================================================================
// Request Tests
// =============================================================================

func TestRequest_Activates(t *testing.T) {
	m, _, auditRepo := newTestManager(t)
	ctx := context.Background()

	o, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if o.Status != StatusActive {
		t.Errorf("Status = %s, want %s", o.Status, StatusActive)
	}
	wantExpiry := o.CreatedAt.Add(600 * time.Second)
	if !o.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", o.ExpiresAt, wantExpiry)
	}
	if o.Precedence != control.PrecedenceManual {
		t.Errorf("Precedence = %v, want manual default", o.Precedence)
	}

	got, ok := m.ActiveFor(podA, control.ParamTemperature)
	if !ok || got.ID != o.ID {
		t.Error("ActiveFor() should return the new override")
	}

	events, _ := auditRepo.List(ctx, audit.Filter{Type: audit.EventOverride})
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].Action != "override activated" {
		t.Errorf("audit action = %q", events[0].Action)
	}
}

func TestRequest_Validation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"invalid scope", func(r *Request) { r.Scope = control.Scope{} }},
		{"invalid parameter", func(r *Request) { r.Parameter = "colour" }},
		{"empty reason", func(r *Request) { r.Reason = "" }},
		{"zero ttl", func(r *Request) { r.TTLSeconds = 0 }},
		{"negative ttl", func(r *Request) { r.TTLSeconds = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if _, err := m.Request(ctx, req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Request() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestRequest_EqualPrecedenceRejected(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Request(ctx, validRequest()); err != nil {
		t.Fatalf("first Request() error = %v", err)
	}

	_, err := m.Request(ctx, validRequest())
	if !errors.Is(err, ErrPreemptionRequired) {
		t.Fatalf("second Request() error = %v, want ErrPreemptionRequired", err)
	}
}

func TestRequest_HigherPrecedencePreempts(t *testing.T) {
	m, _, auditRepo := newTestManager(t)
	ctx := context.Background()

	first, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("first Request() error = %v", err)
	}

	req := validRequest()
	req.Precedence = control.PrecedenceEStop
	req.Actor = "interlock-handler"
	second, err := m.Request(ctx, req)
	if err != nil {
		t.Fatalf("higher precedence Request() error = %v", err)
	}

	got, err := m.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get(first) error = %v", err)
	}
	if got.Status != StatusReverted {
		t.Errorf("incumbent status = %s, want %s", got.Status, StatusReverted)
	}

	active, ok := m.ActiveFor(podA, control.ParamTemperature)
	if !ok || active.ID != second.ID {
		t.Error("ActiveFor() should return the preempting override")
	}

	// The preemption itself is audited, attributed to the system.
	events, _ := auditRepo.List(ctx, audit.Filter{Type: audit.EventOverride})
	var seen bool
	for _, e := range events {
		if e.Action == "preempted by higher precedence" && e.Actor == "system" {
			seen = true
		}
	}
	if !seen {
		t.Error("preemption should append a system-attributed audit event")
	}
}

func TestRequest_AuditFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo, failingRecorder{})
	ctx := context.Background()

	if _, err := m.Request(ctx, validRequest()); err == nil {
		t.Fatal("Request() should fail when the audit append fails")
	}

	if _, ok := m.ActiveFor(podA, control.ParamTemperature); ok {
		t.Error("no override should be active after a failed audit append")
	}
	rows, _ := repo.ListActive(ctx)
	if len(rows) != 0 {
		t.Errorf("repository rows = %d, want 0 after rollback", len(rows))
	}
}

// =============================================================================
// Transition Tests
// =============================================================================

func TestCancel(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	o, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if err := m.Cancel(ctx, o.ID, "grower-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	got, _ := m.Get(ctx, o.ID)
	if got.Status != StatusReverted {
		t.Errorf("status = %s, want %s", got.Status, StatusReverted)
	}
	if got.RevertedAt == nil {
		t.Error("RevertedAt should be set after cancel")
	}
	if _, ok := m.ActiveFor(podA, control.ParamTemperature); ok {
		t.Error("pair should be free after cancel")
	}
}

func TestCancel_TerminalIsStale(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	o, _ := m.Request(ctx, validRequest())
	if err := m.Cancel(ctx, o.ID, "grower-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The losing side of a cancel/expire race sees ErrStaleTransition.
	if err := m.Cancel(ctx, o.ID, "grower-1"); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("second Cancel() error = %v, want ErrStaleTransition", err)
	}
	if err := m.Expire(ctx, o.ID); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("Expire() after cancel error = %v, want ErrStaleTransition", err)
	}
}

func TestCancel_NotFound(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Cancel(context.Background(), "ovr-missing", "grower-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestEscalate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	o, _ := m.Request(ctx, validRequest())
	if err := m.Escalate(ctx, o.ID, "site-manager", "condition persists past TTL"); err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}

	got, _ := m.Get(ctx, o.ID)
	if got.Status != StatusEscalated {
		t.Errorf("status = %s, want %s", got.Status, StatusEscalated)
	}
}

func TestBlockScope(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	reqTemp := validRequest()
	reqHum := validRequest()
	reqHum.Parameter = control.ParamRH
	reqOther := validRequest()
	reqOther.Scope = control.Scope{Kind: control.ScopePod, ID: "pod-b"}

	if _, err := m.Request(ctx, reqTemp); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := m.Request(ctx, reqHum); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	other, err := m.Request(ctx, reqOther)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	blocked, err := m.BlockScope(ctx, podA, "", "door interlock open")
	if err != nil {
		t.Fatalf("BlockScope() error = %v", err)
	}
	if blocked != 2 {
		t.Errorf("blocked = %d, want 2", blocked)
	}

	// The unrelated scope is untouched.
	got, _ := m.Get(ctx, other.ID)
	if got.Status != StatusActive {
		t.Errorf("pod-b override status = %s, want active", got.Status)
	}
}

func TestBlockScope_PairSpecific(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	reqTemp := validRequest()
	reqHum := validRequest()
	reqHum.Parameter = control.ParamRH

	temp, err := m.Request(ctx, reqTemp)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	hum, err := m.Request(ctx, reqHum)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// A signal naming a parameter blocks only that pair's override.
	blocked, err := m.BlockScope(ctx, podA, control.ParamTemperature, "temperature sensor fault")
	if err != nil {
		t.Fatalf("BlockScope() error = %v", err)
	}
	if blocked != 1 {
		t.Errorf("blocked = %d, want 1", blocked)
	}

	gotTemp, _ := m.Get(ctx, temp.ID)
	if gotTemp.Status != StatusBlocked {
		t.Errorf("temperature override status = %s, want blocked", gotTemp.Status)
	}
	gotHum, _ := m.Get(ctx, hum.ID)
	if gotHum.Status != StatusActive {
		t.Errorf("humidity override status = %s, want active", gotHum.Status)
	}
}

// =============================================================================
// Sweep Tests
// =============================================================================

func TestSweep_NeverEarly(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	o, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// One tick before expiry: nothing to do.
	m.now = func() time.Time { return base.Add(600*time.Second - time.Millisecond) }
	n, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Sweep() before expiry = %d, want 0", n)
	}

	// At expiry: reverted.
	m.now = func() time.Time { return base.Add(600 * time.Second) }
	n, err = m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() at expiry = %d, want 1", n)
	}

	got, _ := m.Get(ctx, o.ID)
	if got.Status != StatusReverted {
		t.Errorf("status = %s, want %s", got.Status, StatusReverted)
	}
}

// =============================================================================
// Query Tests
// =============================================================================

func TestActivePinned(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Request(ctx, validRequest()); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	pinned := m.ActivePinned(podA, control.PrecedenceRecipe)
	if len(pinned) != 1 || pinned[0] != control.ParamTemperature {
		t.Errorf("ActivePinned() = %v, want [temperature]", pinned)
	}

	// An e-stop floor excludes manual overrides.
	if got := m.ActivePinned(podA, control.PrecedenceEStop); len(got) != 0 {
		t.Errorf("ActivePinned(estop floor) = %v, want empty", got)
	}
}

func TestRefreshCache(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	o, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// A fresh manager over the same repository sees the active override.
	m2 := NewManager(repo, failingRecorder{})
	if err := m2.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	got, ok := m2.ActiveFor(podA, control.ParamTemperature)
	if !ok || got.ID != o.ID {
		t.Error("RefreshCache() should restore the active override")
	}
}

func TestGet_TerminalAfterRestart(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	o, err := m.Request(ctx, validRequest())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := m.Cancel(ctx, o.ID, "grower-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// A fresh manager warms its cache from active overrides only; the
	// reverted one must still be reachable by ID.
	auditRepo := audit.NewMemoryRepository()
	ledger := audit.NewLedger(auditRepo)
	if err := ledger.Load(ctx); err != nil {
		t.Fatal(err)
	}
	m2 := NewManager(repo, ledger)
	if err := m2.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	got, err := m2.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get(terminal) error = %v, want fall-through to the repository", err)
	}
	if got.Status != StatusReverted {
		t.Errorf("Status = %s, want %s", got.Status, StatusReverted)
	}

	if _, err := m2.Get(ctx, "ovr-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}
