package recipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
)

// Logger defines the logging interface used by the Store.
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

// Store provides recipe lifecycle management with caching and thread
// safety. It wraps a Repository and keeps recipes plus their versions
// in memory; reads return deep copies so callers can never corrupt the
// cache.
//
// Lifecycle transitions (create, publish, clone, deprecate) are
// recorded in the audit ledger. A failed audit append rolls the
// transition back and surfaces the error — the store is fail-closed.
//
// All public methods are thread-safe.
type Store struct {
	repo    Repository
	ledger  audit.Recorder
	logger  Logger
	mu      sync.RWMutex
	recipes map[string]*Recipe
	// versions holds every version by recipe ID and number. The working
	// version of a draft (number CurrentVersion+1) is the only entry
	// ever mutated in place.
	versions map[string]map[int]*Version
}

// NewStore creates a recipe store over the given repository and ledger.
func NewStore(repo Repository, ledger audit.Recorder) *Store {
	return &Store{
		repo:     repo,
		ledger:   ledger,
		logger:   noopLogger{},
		recipes:  make(map[string]*Recipe),
		versions: make(map[string]map[int]*Version),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// RefreshCache reloads all recipes and versions from the repository.
// This should be called on application startup.
func (s *Store) RefreshCache(ctx context.Context) error {
	recipes, err := s.repo.ListRecipes(ctx)
	if err != nil {
		return fmt.Errorf("loading recipes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recipes = make(map[string]*Recipe, len(recipes))
	s.versions = make(map[string]map[int]*Version, len(recipes))
	for i := range recipes {
		rec := recipes[i]
		s.recipes[rec.ID] = &rec

		versions, listErr := s.repo.ListVersions(ctx, rec.ID)
		if listErr != nil {
			return fmt.Errorf("loading versions for %s: %w", rec.ID, listErr)
		}
		byNumber := make(map[int]*Version, len(versions))
		for j := range versions {
			v := versions[j]
			byNumber[v.Number] = &v
		}
		s.versions[rec.ID] = byNumber
	}

	s.logger.Info("recipe cache refreshed", "count", len(recipes))
	return nil
}

// CreateDraft creates a new draft recipe with an empty working version.
func (s *Store) CreateDraft(ctx context.Context, name, owner string) (*Recipe, error) {
	if err := validateRecipeName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &Recipe{
		ID:        "rcp-" + uuid.NewString()[:8],
		Name:      name,
		Owner:     owner,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	working := &Version{
		RecipeID:  rec.ID,
		Number:    1,
		CreatedBy: owner,
		CreatedAt: now,
	}

	if err := s.repo.CreateRecipe(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.repo.SaveVersion(ctx, working); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventRecipeChange,
		Actor:  owner,
		Action: "draft created",
		Metadata: map[string]any{
			"recipe_id": rec.ID,
			"name":      rec.Name,
		},
	}); err != nil {
		// Fail closed: without a durable audit record the create is
		// rolled back.
		if revertErr := s.repo.DeleteRecipe(ctx, rec.ID); revertErr != nil {
			s.logger.Error("draft create rollback failed", "recipe_id", rec.ID, "error", revertErr)
		}
		return nil, err
	}

	s.mu.Lock()
	s.recipes[rec.ID] = rec
	s.versions[rec.ID] = map[int]*Version{1: working}
	s.mu.Unlock()

	s.logger.Info("recipe draft created", "recipe_id", rec.ID, "name", name)
	cpy := *rec
	return &cpy, nil
}

// Get returns a recipe by ID.
func (s *Store) Get(_ context.Context, id string) (*Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recipes[id]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	cpy := *rec
	return &cpy, nil
}

// List returns all recipes.
func (s *Store) List(_ context.Context) ([]Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Recipe, 0, len(s.recipes))
	for _, rec := range s.recipes {
		out = append(out, *rec)
	}
	return out, nil
}

// GetVersion returns one version of a recipe as a deep copy.
func (s *Store) GetVersion(_ context.Context, recipeID string, number int) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byNumber, ok := s.versions[recipeID]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	v, ok := byNumber[number]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return v.DeepCopy(), nil
}

// WorkingVersion returns the mutable working version of a draft.
func (s *Store) WorkingVersion(_ context.Context, recipeID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, working, err := s.draftLocked(recipeID)
	if err != nil {
		return nil, err
	}
	return working.DeepCopy(), nil
}

// AddStage appends a stage to a draft's working version.
// The stage's order index is assigned from its position.
func (s *Store) AddStage(ctx context.Context, recipeID string, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, working, err := s.draftLocked(recipeID)
	if err != nil {
		return err
	}

	stage.OrderIndex = len(working.Stages)
	updated := working.DeepCopy()
	updated.Stages = append(updated.Stages, *stage.DeepCopy())
	return s.saveWorkingLocked(ctx, recipeID, updated)
}

// EditStage replaces the stage at the given index on a draft's working
// version, preserving its order index.
func (s *Store) EditStage(ctx context.Context, recipeID string, index int, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, working, err := s.draftLocked(recipeID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(working.Stages) {
		return ErrStageNotFound
	}

	stage.OrderIndex = index
	updated := working.DeepCopy()
	updated.Stages[index] = *stage.DeepCopy()
	return s.saveWorkingLocked(ctx, recipeID, updated)
}

// RemoveStage deletes the stage at the given index from a draft's
// working version and reindexes the remainder.
func (s *Store) RemoveStage(ctx context.Context, recipeID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, working, err := s.draftLocked(recipeID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(working.Stages) {
		return ErrStageNotFound
	}

	updated := working.DeepCopy()
	updated.Stages = append(updated.Stages[:index], updated.Stages[index+1:]...)
	for i := range updated.Stages {
		updated.Stages[i].OrderIndex = i
	}
	return s.saveWorkingLocked(ctx, recipeID, updated)
}

// Validate runs validation against a draft's working version and
// returns every finding. It never blocks anything by itself.
func (s *Store) Validate(_ context.Context, recipeID string) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, working, err := s.draftLocked(recipeID)
	if err != nil {
		return nil, err
	}
	return Validate(rec.Name, working), nil
}

// SaveDraft re-validates and persists a draft's working version with
// updated notes. Error-severity issues block the save; warnings are
// returned alongside a nil error.
func (s *Store) SaveDraft(ctx context.Context, recipeID, notes string) ([]Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, working, err := s.draftLocked(recipeID)
	if err != nil {
		return nil, err
	}

	issues := Validate(rec.Name, working)
	if HasErrors(issues) {
		return issues, ErrValidationFailed
	}

	updated := working.DeepCopy()
	updated.Notes = notes
	if err := s.saveWorkingLocked(ctx, recipeID, updated); err != nil {
		return issues, err
	}
	return issues, nil
}

// Publish re-validates the working version, freezes it, and updates the
// recipe's current version. Error-severity issues block; warnings are
// returned alongside a nil error.
//
// Publishing does not affect any running batch group until the new
// version is explicitly activated via the schedule manager.
func (s *Store) Publish(ctx context.Context, recipeID, actor string) ([]Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, working, err := s.draftLocked(recipeID)
	if err != nil {
		return nil, err
	}

	issues := Validate(rec.Name, working)
	if HasErrors(issues) {
		return issues, ErrValidationFailed
	}

	published := working.DeepCopy()
	published.Published = true

	updatedRec := *rec
	updatedRec.Status = StatusPublished
	updatedRec.CurrentVersion = published.Number
	updatedRec.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveVersion(ctx, published); err != nil {
		return issues, err
	}
	if err := s.repo.UpdateRecipe(ctx, &updatedRec); err != nil {
		return issues, err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventRecipeChange,
		Actor:  actor,
		Action: "version published",
		Metadata: map[string]any{
			"recipe_id": recipeID,
			"name":      rec.Name,
			"version":   published.Number,
			"stages":    len(published.Stages),
		},
	}); err != nil {
		// Fail closed: without a durable audit record the publish is
		// rolled back.
		working.Published = false
		if revertErr := s.repo.SaveVersion(ctx, working); revertErr != nil {
			s.logger.Error("publish rollback failed", "recipe_id", recipeID, "error", revertErr)
		}
		if revertErr := s.repo.UpdateRecipe(ctx, rec); revertErr != nil {
			s.logger.Error("publish rollback failed", "recipe_id", recipeID, "error", revertErr)
		}
		return issues, err
	}

	s.recipes[recipeID] = &updatedRec
	s.versions[recipeID][published.Number] = published

	s.logger.Info("recipe published",
		"recipe_id", recipeID,
		"version", published.Number,
		"warnings", len(issues),
	)
	return issues, nil
}

// Clone creates a new, independently mutable draft from a published
// recipe. Stages and setpoints are value-equal to the source's current
// version; the recipe ID, version numbering and status are fresh.
func (s *Store) Clone(ctx context.Context, sourceID, actor string) (*Recipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.recipes[sourceID]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	if src.CurrentVersion == 0 {
		return nil, fmt.Errorf("%w: %s has no published version", ErrNotPublished, sourceID)
	}
	srcVersion, ok := s.versions[sourceID][src.CurrentVersion]
	if !ok {
		return nil, ErrVersionNotFound
	}

	now := time.Now().UTC()
	clone := &Recipe{
		ID:        "rcp-" + uuid.NewString()[:8],
		Name:      src.Name + " (copy)",
		Owner:     actor,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	working := srcVersion.DeepCopy()
	working.RecipeID = clone.ID
	working.Number = 1
	working.Published = false
	working.CreatedBy = actor
	working.CreatedAt = now
	working.Notes = fmt.Sprintf("cloned from %s v%d", sourceID, srcVersion.Number)

	if err := s.repo.CreateRecipe(ctx, clone); err != nil {
		return nil, err
	}
	if err := s.repo.SaveVersion(ctx, working); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventRecipeChange,
		Actor:  actor,
		Action: "recipe cloned",
		Metadata: map[string]any{
			"recipe_id":      clone.ID,
			"source_id":      sourceID,
			"source_version": srcVersion.Number,
		},
	}); err != nil {
		// Fail closed: without a durable audit record the clone is
		// rolled back.
		if revertErr := s.repo.DeleteRecipe(ctx, clone.ID); revertErr != nil {
			s.logger.Error("clone rollback failed", "recipe_id", clone.ID, "error", revertErr)
		}
		return nil, err
	}

	s.recipes[clone.ID] = clone
	s.versions[clone.ID] = map[int]*Version{1: working}

	s.logger.Info("recipe cloned", "recipe_id", clone.ID, "source_id", sourceID)
	cpy := *clone
	return &cpy, nil
}

// Deprecate marks a published recipe as deprecated. Deprecated recipes
// keep their published versions (running activations are unaffected)
// but cannot be scheduled for new activations.
func (s *Store) Deprecate(ctx context.Context, recipeID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipes[recipeID]
	if !ok {
		return ErrRecipeNotFound
	}
	if rec.Status != StatusPublished && rec.Status != StatusApplied {
		return fmt.Errorf("%w: cannot deprecate a %s recipe", ErrNotPublished, rec.Status)
	}

	prev := *rec
	updated := *rec
	updated.Status = StatusDeprecated
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateRecipe(ctx, &updated); err != nil {
		return err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		Type:   audit.EventRecipeChange,
		Actor:  actor,
		Action: "recipe deprecated",
		Metadata: map[string]any{
			"recipe_id": recipeID,
			"name":      rec.Name,
		},
	}); err != nil {
		if revertErr := s.repo.UpdateRecipe(ctx, &prev); revertErr != nil {
			s.logger.Error("deprecate rollback failed", "recipe_id", recipeID, "error", revertErr)
		}
		return err
	}

	s.recipes[recipeID] = &updated
	s.logger.Info("recipe deprecated", "recipe_id", recipeID)
	return nil
}

// MarkApplied records that a recipe version has been activated on a
// scope. Called by the schedule manager after a successful activation.
func (s *Store) MarkApplied(ctx context.Context, recipeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipes[recipeID]
	if !ok {
		return ErrRecipeNotFound
	}
	if rec.Status != StatusPublished {
		return nil // already applied, or deprecated mid-flight
	}

	updated := *rec
	updated.Status = StatusApplied
	updated.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateRecipe(ctx, &updated); err != nil {
		return err
	}
	s.recipes[recipeID] = &updated
	return nil
}

// draftLocked returns the recipe and its working version, requiring
// draft status. Callers must hold s.mu.
func (s *Store) draftLocked(recipeID string) (*Recipe, *Version, error) {
	rec, ok := s.recipes[recipeID]
	if !ok {
		return nil, nil, ErrRecipeNotFound
	}
	if rec.Status != StatusDraft {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrNotDraft, recipeID, rec.Status)
	}
	working, ok := s.versions[recipeID][rec.CurrentVersion+1]
	if !ok {
		return nil, nil, ErrVersionNotFound
	}
	return rec, working, nil
}

// saveWorkingLocked persists and caches a rewritten working version.
// Callers must hold s.mu.
func (s *Store) saveWorkingLocked(ctx context.Context, recipeID string, v *Version) error {
	if err := s.repo.SaveVersion(ctx, v); err != nil {
		return err
	}
	s.versions[recipeID][v.Number] = v
	return nil
}

func validateRecipeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}
