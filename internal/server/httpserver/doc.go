// Package httpserver serves the slotmesh control API.
//
// The API is local tooling, normally bound to loopback:
//
//   - Slot endpoints: /v1/slots, /v1/slots/active, /v1/slots/cycle, /v1/slots/{id}
//   - Dummy endpoints: /v1/dummies
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - Optional TLS
//   - Middleware chain: Recover, RequestID, AccessLog, RateLimit, Auth
//   - Graceful shutdown with configurable timeout
package httpserver
