package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// handleEffectiveScope resolves the effective setpoint for every
// parameter of a scope. Parameters with no opinionated source are
// omitted from the response.
func (s *Server) handleEffectiveScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}

	decisions := s.engine.ResolveScope(r.Context(), scope)
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":     scope.Key(),
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// handleEffectiveParameter resolves the effective setpoint for one
// (scope, parameter) pair, shadowed candidates included.
func (s *Server) handleEffectiveParameter(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}
	param := control.Parameter(chi.URLParam(r, "parameter"))
	if !param.Valid() {
		writeBadRequest(w, "invalid parameter: "+string(param))
		return
	}

	decision, ok := s.engine.ResolveEffective(r.Context(), scope, param)
	if !ok {
		writeNotFound(w, "no source has an opinion for "+control.PairKey(scope, param))
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
