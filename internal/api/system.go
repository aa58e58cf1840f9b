package api

import (
	"net/http"
	"time"
)

// SystemStatusResponse summarises the running system for dashboards.
type SystemStatusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	MQTTConnected  bool   `json:"mqtt_connected"`
	WSClients      int    `json:"ws_clients"`
	ActiveOverride int    `json:"active_overrides"`
	PendingActs    int    `json:"pending_activations"`
	SafetySignals  int    `json:"safety_signals"`
	EStopSignals   int    `json:"estop_signals"`
	DRDirectives   int    `json:"dr_directives"`
}

// handleSystemStatus returns a snapshot of the control system's state:
// connectivity, connected clients, and the live signal/override counts
// feeding the arbitration engine.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if s.mqtt != nil {
		resp.MQTTConnected = s.mqtt.IsConnected()
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}
	resp.ActiveOverride = len(s.overrides.ListActive(r.Context()))
	resp.PendingActs = len(s.schedules.ListActivations(r.Context()))
	if s.safety != nil {
		resp.SafetySignals = len(s.safety.List())
	}
	if s.estop != nil {
		resp.EStopSignals = len(s.estop.List())
	}
	if s.dr != nil {
		resp.DRDirectives = len(s.dr.List())
	}

	writeJSON(w, http.StatusOK, resp)
}
