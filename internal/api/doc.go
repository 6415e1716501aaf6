// Package api implements the local status API for the garage agent.
//
// This package provides:
//   - GET /api/v1/health: MQTT, journal and telemetry status
//   - GET /api/v1/door: the engine's current view of the door
//   - GET /api/v1/door/events?limit=N: the local event journal, newest first
//   - GET /api/v1/door/ws: live engine events over WebSocket
//   - Middleware stack (request ID, logging, recovery)
//
// When api.auth.jwtSecret is set, the door endpoints require a bearer
// token issued with auth.IssueToken; health stays open for monitoring.
//
// The API is read-only. Toggle requests only ever arrive through the device
// shadow, so there is no way to move the door from here.
//
// # Graceful Degradation
//
// The journal is optional. Without it the events endpoint answers 503 and
// everything else keeps working.
package api
