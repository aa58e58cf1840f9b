package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/arbiter"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// RaiseSignalRequest is the payload for injecting a safety or e-stop
// signal. An empty parameter asserts the signal scope-wide.
type RaiseSignalRequest struct {
	ScopeKind string  `json:"scope_kind"`
	ScopeID   string  `json:"scope_id"`
	Parameter string  `json:"parameter,omitempty"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Reason    string  `json:"reason"`
	Source    string  `json:"source"`
}

// AcceptDirectiveRequest is the payload for a demand-response directive.
type AcceptDirectiveRequest struct {
	ScopeKind string    `json:"scope_kind"`
	ScopeID   string    `json:"scope_id"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
}

// handleListSafetySignals returns all raised safety signals.
func (s *Server) handleListSafetySignals(w http.ResponseWriter, _ *http.Request) {
	signals := s.safety.List()
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

// handleRaiseSafety raises a safety interlock signal.
func (s *Server) handleRaiseSafety(w http.ResponseWriter, r *http.Request) {
	s.raiseSignal(w, r, s.safety, "safety interlock")
}

// handleClearSafety clears a safety signal on a scope. An optional
// "parameter" query restricts the clear to one pair.
func (s *Server) handleClearSafety(w http.ResponseWriter, r *http.Request) {
	s.clearSignal(w, r, s.safety)
}

// handleListEStopSignals returns all raised e-stop signals.
func (s *Server) handleListEStopSignals(w http.ResponseWriter, _ *http.Request) {
	signals := s.estop.List()
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

// handleRaiseEStop raises an emergency-stop signal.
func (s *Server) handleRaiseEStop(w http.ResponseWriter, r *http.Request) {
	s.raiseSignal(w, r, s.estop, "emergency stop")
}

// handleClearEStop clears an e-stop signal on a scope.
func (s *Server) handleClearEStop(w http.ResponseWriter, r *http.Request) {
	s.clearSignal(w, r, s.estop)
}

// raiseSignal validates and raises a signal on the given board, blocks
// any active overrides on the scope, and re-resolves affected pairs so
// the new winner publishes immediately.
func (s *Server) raiseSignal(w http.ResponseWriter, r *http.Request, board *arbiter.SignalBoard, kind string) {
	var req RaiseSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	scope := control.Scope{Kind: control.ScopeKind(req.ScopeKind), ID: req.ScopeID}
	sig := arbiter.Signal{
		Scope:     scope,
		Parameter: control.Parameter(req.Parameter),
		Value:     req.Value,
		Unit:      req.Unit,
		Reason:    req.Reason,
		Source:    req.Source,
	}
	if err := board.Raise(sig); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	// Signal arrival blocks active overrides it covers: the whole scope
	// for a scope-wide signal, the one pair otherwise. Overrides
	// requested after this point are accepted but shadowed.
	blocked, err := s.overrides.BlockScope(r.Context(), scope, sig.Parameter, kind+": "+req.Reason)
	if err != nil {
		s.logger.Error("failed to block overrides on signal", "scope", scope.Key(), "error", err)
	}

	s.engine.ResolveScope(r.Context(), scope)
	if s.hub != nil {
		s.hub.Broadcast(ChannelSignalUpdated, map[string]any{
			"kind":   kind,
			"scope":  scope.Key(),
			"raised": true,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":            "raised",
		"overrides_blocked": blocked,
	})
}

// clearSignal clears a signal from the given board and re-resolves the
// scope so lower-precedence sources win again.
func (s *Server) clearSignal(w http.ResponseWriter, r *http.Request, board *arbiter.SignalBoard) {
	scope, ok := scopeFromURL(r)
	if !ok {
		writeBadRequest(w, "invalid scope")
		return
	}
	param := control.Parameter(r.URL.Query().Get("parameter"))

	if err := board.Clear(scope, param); err != nil {
		if errors.Is(err, arbiter.ErrSignalNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	s.engine.ResolveScope(r.Context(), scope)
	if s.hub != nil {
		s.hub.Broadcast(ChannelSignalUpdated, map[string]any{
			"scope":  scope.Key(),
			"raised": false,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleListDirectives returns all accepted demand-response directives.
func (s *Server) handleListDirectives(w http.ResponseWriter, _ *http.Request) {
	directives := s.dr.List()
	writeJSON(w, http.StatusOK, map[string]any{"directives": directives, "count": len(directives)})
}

// handleAcceptDirective accepts a demand-response directive. Directives
// sit at the bottom of the precedence order; they only win when no
// safety signal, override, or recipe target claims the pair.
func (s *Server) handleAcceptDirective(w http.ResponseWriter, r *http.Request) {
	var req AcceptDirectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	scope := control.Scope{Kind: control.ScopeKind(req.ScopeKind), ID: req.ScopeID}
	d, err := s.dr.Accept(arbiter.Directive{
		Scope:     scope,
		Parameter: control.Parameter(req.Parameter),
		Value:     req.Value,
		Unit:      req.Unit,
		NotBefore: req.NotBefore,
		NotAfter:  req.NotAfter,
		Reason:    req.Reason,
		Actor:     req.Actor,
	})
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.engine.ResolveEffective(r.Context(), d.Scope, d.Parameter)
	writeJSON(w, http.StatusCreated, d)
}

// handleWithdrawDirective withdraws a directive by ID.
func (s *Server) handleWithdrawDirective(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.dr.Withdraw(id); err != nil {
		if errors.Is(err, arbiter.ErrDirectiveNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}
