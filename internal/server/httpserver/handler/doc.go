// Package handler implements the control API of a running slotmesh
// session.
//
// Every JSON response uses the envelope in types.go. Domain error codes are
// mapped to HTTP statuses by their numeric suffix.
package handler
