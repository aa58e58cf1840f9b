package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/schedule"
)

// CreateScheduleRequest is the payload for creating a scope schedule.
type CreateScheduleRequest struct {
	ScopeKind  string                   `json:"scope_kind"`
	ScopeID    string                   `json:"scope_id"`
	Timezone   string                   `json:"timezone"`
	DayStart   string                   `json:"day_start"`   // "HH:MM"
	NightStart string                   `json:"night_start"` // "HH:MM"
	Blackouts  []schedule.BlackoutWindow `json:"blackouts,omitempty"`
}

// ScheduleActivationRequest is the payload for scheduling a recipe
// activation on a scope.
type ScheduleActivationRequest struct {
	ScopeKind  string    `json:"scope_kind"`
	ScopeID    string    `json:"scope_id"`
	RecipeID   string    `json:"recipe_id"`
	Version    int       `json:"version"`
	ActivateAt time.Time `json:"activate_at"`
	Actor      string    `json:"actor"`
}

// CreateBatchGroupRequest is the payload for creating a batch group.
type CreateBatchGroupRequest struct {
	Name   string   `json:"name"`
	PodIDs []string `json:"pod_ids"`
	Actor  string   `json:"actor"`
}

// handleListSchedules returns all schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules := s.schedules.ListSchedules(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// handleCreateSchedule creates a schedule for a scope.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dayStart, err := schedule.ParseTimeOfDay(req.DayStart)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	nightStart, err := schedule.ParseTimeOfDay(req.NightStart)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	scope := control.Scope{Kind: control.ScopeKind(req.ScopeKind), ID: req.ScopeID}
	sched, err := s.schedules.CreateSchedule(r.Context(), scope, req.Timezone, dayStart, nightStart, req.Blackouts)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleGetSchedule returns the schedule for a scope.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}

	sched, err := s.schedules.GetSchedule(r.Context(), scope)
	if err != nil {
		writeNotFound(w, "no schedule for scope "+scope.Key())
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleStagePosition reports where the scope's active recipe is right
// now: stage, 1-based stage day, and day/night period.
func (s *Server) handleStagePosition(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}

	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "at must be RFC3339")
			return
		}
		at = parsed
	}

	pos, err := s.schedules.Position(r.Context(), scope, at)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// handleAddBlackout appends a blackout window to a scope's schedule.
func (s *Server) handleAddBlackout(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}

	var window schedule.BlackoutWindow
	if err := json.NewDecoder(r.Body).Decode(&window); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.schedules.AddBlackoutWindow(r.Context(), scope, window); err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// handleRemoveBlackout deletes a blackout window by index.
func (s *Server) handleRemoveBlackout(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "window index must be an integer")
		return
	}

	if err := s.schedules.RemoveBlackoutWindow(r.Context(), scope, index); err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleListActivations returns all pending activations.
func (s *Server) handleListActivations(w http.ResponseWriter, r *http.Request) {
	activations := s.schedules.ListActivations(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"activations": activations,
		"count":       len(activations),
	})
}

// handleScheduleActivation schedules a published recipe version for
// activation on a scope. Activations landing inside a blackout window
// are refused; parameters pinned by a recipe-or-higher override at the
// activation time are deferred, not blocked.
func (s *Server) handleScheduleActivation(w http.ResponseWriter, r *http.Request) {
	var req ScheduleActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	scope := control.Scope{Kind: control.ScopeKind(req.ScopeKind), ID: req.ScopeID}
	activation, err := s.schedules.ScheduleActivation(r.Context(), scope, req.RecipeID, req.Version, req.ActivateAt, req.Actor)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activation)
}

// handleCancelActivation withdraws a future-dated activation.
func (s *Server) handleCancelActivation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeBadRequest(w, "actor query parameter is required")
		return
	}

	if err := s.schedules.CancelActivation(r.Context(), id, actor); err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleListBatchGroups returns all batch groups.
func (s *Server) handleListBatchGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.schedules.ListBatchGroups(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_groups": groups,
		"count":        len(groups),
	})
}

// handleCreateBatchGroup creates a named collection of pods that share
// recipe activations.
func (s *Server) handleCreateBatchGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	group, err := s.schedules.CreateBatchGroup(r.Context(), req.Name, req.PodIDs, req.Actor)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// handleGetBatchGroup returns one batch group by ID.
func (s *Server) handleGetBatchGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	group, err := s.schedules.GetBatchGroup(r.Context(), id)
	if err != nil {
		writeNotFound(w, "batch group not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// writeScheduleError maps schedule domain errors to HTTP responses.
func (s *Server) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, schedule.ErrActivationNotFound),
		errors.Is(err, schedule.ErrWindowNotFound),
		errors.Is(err, schedule.ErrGroupNotFound),
		errors.Is(err, schedule.ErrNoActiveRecipe),
		errors.Is(err, recipe.ErrRecipeNotFound),
		errors.Is(err, recipe.ErrVersionNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, schedule.ErrInvalidSchedule):
		writeBadRequest(w, err.Error())
	case errors.Is(err, schedule.ErrExists),
		errors.Is(err, schedule.ErrWindowOverlap),
		errors.Is(err, schedule.ErrBlackoutConflict),
		errors.Is(err, schedule.ErrActivationPassed),
		errors.Is(err, recipe.ErrNotPublished):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("schedule operation failed", "error", err)
		writeInternalError(w, "schedule operation failed")
	}
}
