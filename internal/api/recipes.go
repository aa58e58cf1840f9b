package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
)

// CreateRecipeRequest is the payload for creating a draft recipe.
type CreateRecipeRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// SaveDraftRequest carries optional notes for a draft save.
type SaveDraftRequest struct {
	Notes string `json:"notes"`
}

// ActorRequest carries the acting user for lifecycle transitions.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// ValidationResponse pairs the affected recipe with any validation issues.
type ValidationResponse struct {
	RecipeID string         `json:"recipe_id"`
	Issues   []recipe.Issue `json:"issues"`
}

// handleListRecipes returns all recipes.
func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := s.recipes.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list recipes", "error", err)
		writeInternalError(w, "failed to list recipes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recipes": recipes,
		"count":   len(recipes),
	})
}

// handleCreateRecipe creates a new draft recipe.
func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.recipes.CreateDraft(r.Context(), req.Name, req.Owner)
	if err != nil {
		if errors.Is(err, recipe.ErrInvalidName) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to create recipe", "error", err)
		writeInternalError(w, "failed to create recipe")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleGetRecipe returns one recipe by ID.
func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.recipes.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, "recipe not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAddStage appends a stage to the working version of a draft.
func (s *Server) handleAddStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var stage recipe.Stage
	if err := json.NewDecoder(r.Body).Decode(&stage); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.recipes.AddStage(r.Context(), id, stage); err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// handleEditStage replaces a stage by index on the working version.
func (s *Server) handleEditStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "stage index must be an integer")
		return
	}

	var stage recipe.Stage
	if err := json.NewDecoder(r.Body).Decode(&stage); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.recipes.EditStage(r.Context(), id, index, stage); err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleRemoveStage deletes a stage by index from the working version.
func (s *Server) handleRemoveStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "stage index must be an integer")
		return
	}

	if err := s.recipes.RemoveStage(r.Context(), id, index); err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleValidateRecipe runs validation without persisting anything.
func (s *Server) handleValidateRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	issues, err := s.recipes.Validate(r.Context(), id)
	if err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{RecipeID: id, Issues: issues})
}

// handleSaveDraft persists the working version of a draft recipe.
// Error-severity validation issues block the save and are returned
// with a 422 status; warnings accompany a successful save.
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SaveDraftRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	issues, err := s.recipes.SaveDraft(r.Context(), id, req.Notes)
	if err != nil {
		if errors.Is(err, recipe.ErrValidationFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{RecipeID: id, Issues: issues})
			return
		}
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{RecipeID: id, Issues: issues})
}

// handlePublishRecipe freezes the working version and publishes it.
func (s *Server) handlePublishRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	issues, err := s.recipes.Publish(r.Context(), id, req.Actor)
	if err != nil {
		if errors.Is(err, recipe.ErrValidationFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{RecipeID: id, Issues: issues})
			return
		}
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{RecipeID: id, Issues: issues})
}

// handleCloneRecipe creates a new draft from a published recipe.
func (s *Server) handleCloneRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	clone, err := s.recipes.Clone(r.Context(), id, req.Actor)
	if err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}

// handleDeprecateRecipe marks a recipe as deprecated. Running
// activations continue; new activations are refused.
func (s *Server) handleDeprecateRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	if err := s.recipes.Deprecate(r.Context(), id, req.Actor); err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deprecated"})
}

// handleListVersions returns all versions of a recipe.
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.recipes.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, "recipe not found: "+id)
		return
	}

	published := make([]recipe.Version, 0, rec.CurrentVersion)
	for n := 1; n <= rec.CurrentVersion; n++ {
		v, verErr := s.recipes.GetVersion(r.Context(), id, n)
		if verErr != nil {
			s.logger.Error("failed to load version", "recipe_id", id, "version", n, "error", verErr)
			writeInternalError(w, "failed to list versions")
			return
		}
		published = append(published, *v)
	}

	// Published recipes have no working version; that is not an error here.
	working, err := s.recipes.WorkingVersion(r.Context(), id)
	if err != nil && !errors.Is(err, recipe.ErrVersionNotFound) && !errors.Is(err, recipe.ErrNotDraft) {
		s.logger.Error("failed to load working version", "recipe_id", id, "error", err)
		writeInternalError(w, "failed to list versions")
		return
	}

	resp := map[string]any{
		"recipe_id": id,
		"versions":  published,
	}
	if working != nil {
		resp["working"] = working
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetVersion returns one version of a recipe by number.
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeBadRequest(w, "version number must be an integer")
		return
	}

	ver, err := s.recipes.GetVersion(r.Context(), id, number)
	if err != nil {
		s.writeRecipeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, ver)
}

// writeRecipeError maps recipe domain errors to HTTP responses.
func (s *Server) writeRecipeError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, recipe.ErrRecipeNotFound):
		writeNotFound(w, "recipe not found: "+id)
	case errors.Is(err, recipe.ErrVersionNotFound):
		writeNotFound(w, "version not found")
	case errors.Is(err, recipe.ErrStageNotFound):
		writeNotFound(w, "stage not found")
	case errors.Is(err, recipe.ErrNotDraft), errors.Is(err, recipe.ErrNotPublished):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, recipe.ErrInvalidName):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("recipe operation failed", "recipe_id", id, "error", err)
		writeInternalError(w, "recipe operation failed")
	}
}
