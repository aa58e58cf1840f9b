// Package api implements the HTTP REST API and WebSocket server for Trazo Core.
//
// This package provides:
//   - REST endpoints for recipe authoring, schedules, activations, and overrides
//   - Effective-setpoint queries backed by the arbitration engine
//   - Signal injection for safety interlocks, e-stop, and demand-response
//   - Audit ledger queries and hash-chain verification
//   - WebSocket hub for real-time setpoint and override broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator interfaces (grower dashboard, facility
// admin) and the arbitration engine. Mutations flow through the domain
// managers, which append to the audit ledger before any state change is
// visible. Published setpoint targets flow back via MQTT subscriptions which
// are broadcast to WebSocket clients.
//
// # Graceful Degradation
//
// The server operates without MQTT: every REST endpoint works, only the
// real-time setpoint relay to WebSocket clients is disabled.
package api
