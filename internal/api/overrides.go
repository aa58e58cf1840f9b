package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/override"
)

// scopeFromURL builds a control scope from {kind}/{scopeID} URL params.
func scopeFromURL(r *http.Request) (control.Scope, bool) {
	scope := control.Scope{
		Kind: control.ScopeKind(chi.URLParam(r, "kind")),
		ID:   chi.URLParam(r, "scopeID"),
	}
	return scope, scope.Valid()
}

// RequestOverrideRequest is the payload for requesting a manual override.
type RequestOverrideRequest struct {
	ScopeKind  string  `json:"scope_kind"`
	ScopeID    string  `json:"scope_id"`
	Parameter  string  `json:"parameter"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	TTLSeconds int     `json:"ttl_seconds"`
	Reason     string  `json:"reason"`
	Actor      string  `json:"actor"`
}

// handleListOverrides returns all currently active overrides.
func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	active := s.overrides.ListActive(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"overrides": active,
		"count":     len(active),
	})
}

// handleRequestOverride requests a new manual override.
//
// The current effective value for the pair is captured from the
// arbitration engine before the override lands, so the audit trail and
// UI can show what the override displaced.
func (s *Server) handleRequestOverride(w http.ResponseWriter, r *http.Request) {
	var req RequestOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	scope := control.Scope{Kind: control.ScopeKind(req.ScopeKind), ID: req.ScopeID}
	param := control.Parameter(req.Parameter)

	// Capture the displaced value before the override takes effect.
	var current *float64
	if decision, ok := s.engine.ResolveEffective(r.Context(), scope, param); ok {
		v := decision.Value
		current = &v
	}

	o, err := s.overrides.Request(r.Context(), override.Request{
		Scope:         scope,
		Parameter:     param,
		OverrideValue: req.Value,
		CurrentValue:  current,
		Unit:          req.Unit,
		TTLSeconds:    req.TTLSeconds,
		Reason:        req.Reason,
		Actor:         req.Actor,
	})
	if err != nil {
		switch {
		case errors.Is(err, override.ErrInvalidRequest):
			writeBadRequest(w, err.Error())
		case errors.Is(err, override.ErrPreemptionRequired):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			s.logger.Error("override request failed", "scope", scope.Key(), "error", err)
			writeInternalError(w, "override request failed")
		}
		return
	}

	// The new winner is visible immediately.
	s.engine.ResolveEffective(r.Context(), scope, param)
	if s.hub != nil {
		s.hub.Broadcast(ChannelOverrideUpdated, o)
	}

	writeJSON(w, http.StatusCreated, o)
}

// handleGetOverride returns one override by ID.
func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := s.overrides.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, "override not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleCancelOverride reverts an active override before its TTL.
func (s *Server) handleCancelOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeBadRequest(w, "actor query parameter is required")
		return
	}

	if err := s.overrides.Cancel(r.Context(), id, actor); err != nil {
		s.writeOverrideError(w, id, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelOverrideUpdated, map[string]string{"id": id, "status": string(override.StatusReverted)})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reverted"})
}

// handleEscalateOverride marks an override as escalated: its condition
// outlived the TTL and a higher-precedence actor takes over.
func (s *Server) handleEscalateOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Actor == "" {
		writeBadRequest(w, "actor is required")
		return
	}

	if err := s.overrides.Escalate(r.Context(), id, req.Actor, req.Reason); err != nil {
		s.writeOverrideError(w, id, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelOverrideUpdated, map[string]string{"id": id, "status": string(override.StatusEscalated)})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "escalated"})
}

// handleOverrideHistory returns recent overrides for a scope,
// terminal ones included.
func (s *Server) handleOverrideHistory(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.overrides.History(r.Context(), scope, limit)
	if err != nil {
		s.logger.Error("failed to load override history", "scope", scope.Key(), "error", err)
		writeInternalError(w, "failed to load override history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overrides": history,
		"count":     len(history),
	})
}

// writeOverrideError maps override domain errors to HTTP responses.
func (s *Server) writeOverrideError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, override.ErrNotFound):
		writeNotFound(w, "override not found: "+id)
	case errors.Is(err, override.ErrStaleTransition):
		// The override already reached a terminal state (TTL race).
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("override operation failed", "id", id, "error", err)
		writeInternalError(w, "override operation failed")
	}
}
