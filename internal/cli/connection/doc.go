// Package connection talks to a running session's control API.
//
// Requests carry the bearer token when one is configured. Responses use
// the control API envelope; ParseResponse unwraps its data field or turns
// an error envelope into an *APIError.
package connection
