package recipe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// memoryRepo is an in-memory Repository for tests.
type memoryRepo struct {
	mu       sync.Mutex
	recipes  map[string]Recipe
	versions map[string]map[int]Version
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		recipes:  make(map[string]Recipe),
		versions: make(map[string]map[int]Version),
	}
}

func (r *memoryRepo) CreateRecipe(_ context.Context, rec *Recipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[rec.ID] = *rec
	return nil
}

func (r *memoryRepo) UpdateRecipe(_ context.Context, rec *Recipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recipes[rec.ID]; !ok {
		return ErrRecipeNotFound
	}
	r.recipes[rec.ID] = *rec
	return nil
}

func (r *memoryRepo) GetRecipe(_ context.Context, id string) (*Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipes[id]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	return &rec, nil
}

func (r *memoryRepo) ListRecipes(_ context.Context) ([]Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recipe, 0, len(r.recipes))
	for _, rec := range r.recipes {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryRepo) DeleteRecipe(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recipes, id)
	delete(r.versions, id)
	return nil
}

func (r *memoryRepo) SaveVersion(_ context.Context, v *Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.versions[v.RecipeID] == nil {
		r.versions[v.RecipeID] = make(map[int]Version)
	}
	r.versions[v.RecipeID][v.Number] = *v.DeepCopy()
	return nil
}

func (r *memoryRepo) GetVersion(_ context.Context, recipeID string, number int) (*Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[recipeID][number]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return v.DeepCopy(), nil
}

func (r *memoryRepo) ListVersions(_ context.Context, recipeID string) ([]Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Version{}
	for _, v := range r.versions[recipeID] {
		out = append(out, *v.DeepCopy())
	}
	return out, nil
}

// failingRecorder always fails to append.
type failingRecorder struct{}

func (failingRecorder) Append(context.Context, *audit.Event) (string, error) {
	return "", errors.New("ledger unavailable")
}

func newTestStore(t *testing.T) (*Store, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	ledger := audit.NewLedger(audit.NewMemoryRepository())
	if err := ledger.Load(context.Background()); err != nil {
		t.Fatalf("loading ledger: %v", err)
	}
	return NewStore(repo, ledger), repo
}

func vegStage(days int) Stage {
	return Stage{
		Type:         StageVegetative,
		DurationDays: days,
		Targets: []SetpointTarget{
			{Parameter: control.ParamTemperature, Value: 24, Unit: "C", Deadband: 0.5},
		},
	}
}

// publishableRecipe creates a draft with one valid stage.
func publishableRecipe(t *testing.T, s *Store) *Recipe {
	t.Helper()
	ctx := context.Background()
	rec, err := s.CreateDraft(ctx, "Basil Standard", "grower-1")
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	if err := s.AddStage(ctx, rec.ID, vegStage(14)); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}
	return rec
}

// =============================================================================
// Draft Lifecycle Tests
// =============================================================================

func TestCreateDraft(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateDraft(ctx, "Basil Standard", "grower-1")
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	if rec.Status != StatusDraft {
		t.Errorf("Status = %s, want %s", rec.Status, StatusDraft)
	}
	if rec.CurrentVersion != 0 {
		t.Errorf("CurrentVersion = %d, want 0", rec.CurrentVersion)
	}

	working, err := s.WorkingVersion(ctx, rec.ID)
	if err != nil {
		t.Fatalf("WorkingVersion() error = %v", err)
	}
	if working.Number != 1 {
		t.Errorf("working version number = %d, want 1", working.Number)
	}
	if working.Published {
		t.Error("working version should not be published")
	}
}

func TestCreateDraft_InvalidName(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateDraft(ctx, "", "grower-1"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty name error = %v, want ErrInvalidName", err)
	}

	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.CreateDraft(ctx, string(long), "grower-1"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("oversized name error = %v, want ErrInvalidName", err)
	}
}

func TestCreateDraft_AuditFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	s := NewStore(repo, failingRecorder{})
	ctx := context.Background()

	if _, err := s.CreateDraft(ctx, "Basil Standard", "grower-1"); err == nil {
		t.Fatal("CreateDraft() should fail when the audit append fails")
	}

	// No orphaned recipe or version rows survive the failed create.
	recipes, _ := repo.ListRecipes(ctx)
	if len(recipes) != 0 {
		t.Errorf("repository holds %d recipes after rollback, want 0", len(recipes))
	}
	if len(repo.versions) != 0 {
		t.Errorf("repository holds versions for %d recipes after rollback, want 0", len(repo.versions))
	}
}

func TestStageEditing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)

	if err := s.AddStage(ctx, rec.ID, Stage{Type: StageFlowering, DurationDays: 21}); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}

	working, _ := s.WorkingVersion(ctx, rec.ID)
	if len(working.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(working.Stages))
	}
	if working.Stages[1].OrderIndex != 1 {
		t.Errorf("second stage order index = %d, want 1", working.Stages[1].OrderIndex)
	}

	// Edit preserves the order index regardless of what the caller sets.
	edit := vegStage(10)
	edit.OrderIndex = 99
	if err := s.EditStage(ctx, rec.ID, 1, edit); err != nil {
		t.Fatalf("EditStage() error = %v", err)
	}
	working, _ = s.WorkingVersion(ctx, rec.ID)
	if working.Stages[1].OrderIndex != 1 {
		t.Errorf("edited stage order index = %d, want 1", working.Stages[1].OrderIndex)
	}
	if working.Stages[1].DurationDays != 10 {
		t.Errorf("edited stage duration = %d, want 10", working.Stages[1].DurationDays)
	}

	// Remove reindexes the remainder.
	if err := s.RemoveStage(ctx, rec.ID, 0); err != nil {
		t.Fatalf("RemoveStage() error = %v", err)
	}
	working, _ = s.WorkingVersion(ctx, rec.ID)
	if len(working.Stages) != 1 || working.Stages[0].OrderIndex != 0 {
		t.Errorf("after removal stages = %+v, want single stage at index 0", working.Stages)
	}

	if err := s.EditStage(ctx, rec.ID, 5, vegStage(1)); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("EditStage(out of range) error = %v, want ErrStageNotFound", err)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestSaveDraft_ErrorsBlock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, _ := s.CreateDraft(ctx, "Basil Standard", "grower-1")
	if err := s.AddStage(ctx, rec.ID, Stage{Type: StageVegetative, DurationDays: 0}); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}

	issues, err := s.SaveDraft(ctx, rec.ID, "first pass")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("SaveDraft() error = %v, want ErrValidationFailed", err)
	}
	if !HasErrors(issues) {
		t.Error("zero-duration stage should produce an error-severity issue")
	}
}

func TestSaveDraft_WarningsDoNotBlock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, _ := s.CreateDraft(ctx, "Basil Standard", "grower-1")
	stage := vegStage(14)
	stage.Targets = append(stage.Targets,
		SetpointTarget{Parameter: control.ParamTemperature, Value: 26, Unit: "C"})
	if err := s.AddStage(ctx, rec.ID, stage); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}

	issues, err := s.SaveDraft(ctx, rec.ID, "duplicate target on purpose")
	if err != nil {
		t.Fatalf("SaveDraft() error = %v, warnings must not block", err)
	}
	if len(issues) != 1 || issues[0].Severity != SeverityWarning {
		t.Errorf("issues = %+v, want one warning", issues)
	}

	working, _ := s.WorkingVersion(ctx, rec.ID)
	if working.Notes != "duplicate target on purpose" {
		t.Errorf("notes = %q, save should have persisted", working.Notes)
	}
}

func TestValidate_TargetBounds(t *testing.T) {
	minV, maxV := 18.0, 30.0
	v := &Version{Stages: []Stage{{
		Type:         StageVegetative,
		DurationDays: 7,
		Targets: []SetpointTarget{{
			Parameter: control.ParamTemperature,
			Value:     35, // above max
			Min:       &minV,
			Max:       &maxV,
		}},
	}}}

	issues := Validate("Bounds Check", v)
	if !HasErrors(issues) {
		t.Error("value outside [min, max] should be an error")
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish_FreezesVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)

	issues, err := s.Publish(ctx, rec.ID, "grower-1")
	if err != nil {
		t.Fatalf("Publish() error = %v (issues: %+v)", err, issues)
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusPublished {
		t.Errorf("status = %s, want %s", got.Status, StatusPublished)
	}
	if got.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", got.CurrentVersion)
	}

	v, err := s.GetVersion(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if !v.Published {
		t.Error("published version should be frozen")
	}

	// The published recipe no longer accepts stage edits.
	if err := s.AddStage(ctx, rec.ID, vegStage(1)); !errors.Is(err, ErrNotDraft) {
		t.Errorf("AddStage(published) error = %v, want ErrNotDraft", err)
	}
}

func TestPublish_ValidationBlocks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, _ := s.CreateDraft(ctx, "Empty Recipe", "grower-1")
	issues, err := s.Publish(ctx, rec.ID, "grower-1")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Publish() error = %v, want ErrValidationFailed", err)
	}
	if !HasErrors(issues) {
		t.Error("a stageless recipe should fail validation")
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusDraft {
		t.Errorf("status = %s, failed publish must not change it", got.Status)
	}
}

func TestPublish_AuditFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	good := audit.NewLedger(audit.NewMemoryRepository())
	if err := good.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := NewStore(repo, good)
	ctx := context.Background()
	rec := publishableRecipe(t, s)

	// Swap in a failing recorder for the publish itself.
	s.ledger = failingRecorder{}
	if _, err := s.Publish(ctx, rec.ID, "grower-1"); err == nil {
		t.Fatal("Publish() should fail when the audit append fails")
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusDraft {
		t.Errorf("status = %s, want draft after rollback", got.Status)
	}
	stored, err := repo.GetVersion(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if stored.Published {
		t.Error("version should be unpublished after rollback")
	}
}

// =============================================================================
// Clone and Deprecate Tests
// =============================================================================

func TestClone(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)
	if _, err := s.Publish(ctx, rec.ID, "grower-1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	clone, err := s.Clone(ctx, rec.ID, "grower-2")
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if clone.ID == rec.ID {
		t.Error("clone must have a fresh ID")
	}
	if clone.Status != StatusDraft {
		t.Errorf("clone status = %s, want draft", clone.Status)
	}
	if clone.Name != "Basil Standard (copy)" {
		t.Errorf("clone name = %q", clone.Name)
	}

	// The clone's working version is value-equal but independent.
	working, _ := s.WorkingVersion(ctx, clone.ID)
	if len(working.Stages) != 1 || working.Stages[0].DurationDays != 14 {
		t.Errorf("clone stages = %+v, want copy of source", working.Stages)
	}
	if err := s.EditStage(ctx, clone.ID, 0, vegStage(7)); err != nil {
		t.Fatalf("EditStage(clone) error = %v", err)
	}
	srcVersion, _ := s.GetVersion(ctx, rec.ID, 1)
	if srcVersion.Stages[0].DurationDays != 14 {
		t.Error("editing the clone must not touch the source version")
	}
}

func TestClone_AuditFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	good := audit.NewLedger(audit.NewMemoryRepository())
	if err := good.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := NewStore(repo, good)
	ctx := context.Background()
	rec := publishableRecipe(t, s)
	if _, err := s.Publish(ctx, rec.ID, "grower-1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Swap in a failing recorder for the clone itself.
	s.ledger = failingRecorder{}
	if _, err := s.Clone(ctx, rec.ID, "grower-2"); err == nil {
		t.Fatal("Clone() should fail when the audit append fails")
	}

	// Only the source survives; the orphaned clone is deleted.
	recipes, _ := repo.ListRecipes(ctx)
	if len(recipes) != 1 {
		t.Errorf("repository holds %d recipes after rollback, want the source only", len(recipes))
	}
	if _, err := s.Get(ctx, rec.ID); err != nil {
		t.Errorf("source recipe lost in rollback: %v", err)
	}
}

func TestClone_RequiresPublished(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)

	if _, err := s.Clone(ctx, rec.ID, "grower-2"); !errors.Is(err, ErrNotPublished) {
		t.Errorf("Clone(draft) error = %v, want ErrNotPublished", err)
	}
}

func TestDeprecate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)
	if _, err := s.Publish(ctx, rec.ID, "grower-1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if err := s.Deprecate(ctx, rec.ID, "grower-1"); err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}
	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusDeprecated {
		t.Errorf("status = %s, want %s", got.Status, StatusDeprecated)
	}

	// The published version survives deprecation.
	if _, err := s.GetVersion(ctx, rec.ID, 1); err != nil {
		t.Errorf("GetVersion() after deprecate error = %v", err)
	}
}

func TestDeprecate_DraftRejected(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := publishableRecipe(t, s)

	if err := s.Deprecate(ctx, rec.ID, "grower-1"); !errors.Is(err, ErrNotPublished) {
		t.Errorf("Deprecate(draft) error = %v, want ErrNotPublished", err)
	}
}

// =============================================================================
// Version Math Tests
// =============================================================================

func TestStageAt(t *testing.T) {
	v := &Version{Stages: []Stage{
		{Type: StageGermination, DurationDays: 3, OrderIndex: 0},
		{Type: StageVegetative, DurationDays: 14, OrderIndex: 1},
		{Type: StageFlowering, DurationDays: 21, OrderIndex: 2},
	}}

	tests := []struct {
		dayOffset int
		wantType  StageType
		wantDay   int
		wantOK    bool
	}{
		{0, StageGermination, 1, true},
		{2, StageGermination, 3, true},
		{3, StageVegetative, 1, true},
		{16, StageVegetative, 14, true},
		{17, StageFlowering, 1, true},
		{37, StageFlowering, 21, true},
		{38, "", 0, false}, // past the last stage
		{-1, "", 0, false},
	}

	for _, tt := range tests {
		stage, day, ok := v.StageAt(tt.dayOffset)
		if ok != tt.wantOK {
			t.Errorf("StageAt(%d) ok = %v, want %v", tt.dayOffset, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if stage.Type != tt.wantType || day != tt.wantDay {
			t.Errorf("StageAt(%d) = (%s, day %d), want (%s, day %d)",
				tt.dayOffset, stage.Type, day, tt.wantType, tt.wantDay)
		}
	}

	if total := v.TotalDays(); total != 38 {
		t.Errorf("TotalDays() = %d, want 38", total)
	}
}
