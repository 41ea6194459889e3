// Package domain defines the core domain models for slotmesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is a slot-local failure carrying a stable error code.
// Codes have the form SM-<AREA>-<NNNN>; the last four digits loosely follow
// HTTP status semantics so the control server can map them directly.
type DomainError struct {
	Code    string // Error code (e.g., "SM-SLOT-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Fatal reports whether the error is terminal for the slot that raised it.
func (e *DomainError) Fatal() bool {
	return e.Code == ErrConnectionError.Code
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Slot Errors (SLOT)
// ============================================================================

var (
	// ErrConnectionRefused indicates the main slot is not Online.
	ErrConnectionRefused = NewDomainError("SM-SLOT-4030", "connection refused: main slot not online")

	// ErrInvalidSlot indicates the slot id does not name a live slot.
	ErrInvalidSlot = NewDomainError("SM-SLOT-4040", "invalid slot")

	// ErrUnsupportedByServer indicates the server does not allow additional connections.
	ErrUnsupportedByServer = NewDomainError("SM-SLOT-4050", "additional connections unsupported by server")

	// ErrCapacityExceeded indicates the server-advertised dummy limit is reached.
	ErrCapacityExceeded = NewDomainError("SM-SLOT-4090", "slot capacity exceeded")

	// ErrInvalidTransition indicates a forbidden slot state change.
	ErrInvalidTransition = NewDomainError("SM-SLOT-4091", "invalid slot state transition")
)

// ============================================================================
// Connection Errors (CONN)
// ============================================================================

var (
	// ErrConnectionError is terminal for the owning slot.
	ErrConnectionError = NewDomainError("SM-CONN-5000", "connection error")

	// ErrAckTimeout indicates a slot missed its acknowledgment deadline.
	ErrAckTimeout = NewDomainError("SM-CONN-5040", "acknowledgment deadline exceeded")

	// ErrThrottled indicates a connection attempt was rate limited.
	ErrThrottled = NewDomainError("SM-CONN-4290", "connection attempt throttled")
)

// ============================================================================
// Input Errors (INPT)
// ============================================================================

var (
	// ErrBackpressure indicates an outbound input queue overflowed and dropped its oldest frame.
	ErrBackpressure = NewDomainError("SM-INPT-4290", "input queue backpressure")

	// ErrStaleInputTick indicates an input frame tick did not advance.
	ErrStaleInputTick = NewDomainError("SM-INPT-4091", "input tick not increasing")
)

// ============================================================================
// Snapshot Errors (SNAP)
// ============================================================================

var (
	// ErrSnapshotNotFound indicates no snapshot is stored for the tick.
	ErrSnapshotNotFound = NewDomainError("SM-SNAP-4040", "snapshot not found")

	// ErrSnapshotGapTimeout indicates buffered snapshots waited too long for a missing tick.
	ErrSnapshotGapTimeout = NewDomainError("SM-SNAP-4080", "snapshot gap timeout")

	// ErrSnapshotOutOfOrder indicates a tick not newer than the newest stored tick.
	ErrSnapshotOutOfOrder = NewDomainError("SM-SNAP-4091", "snapshot out of order")

	// ErrSnapshotTooOld indicates a tick below the pruning floor.
	ErrSnapshotTooOld = NewDomainError("SM-SNAP-4100", "snapshot older than pruning floor")

	// ErrDeltaBaseMissing indicates a delta snapshot references an unknown baseline.
	ErrDeltaBaseMissing = NewDomainError("SM-SNAP-4220", "delta baseline missing")

	// ErrChecksumMismatch indicates a reconstructed snapshot failed verification.
	ErrChecksumMismatch = NewDomainError("SM-SNAP-4221", "snapshot checksum mismatch")
)

// ============================================================================
// Protocol and Argument Errors
// ============================================================================

var (
	// ErrMalformedPacket indicates an undecodable packet.
	ErrMalformedPacket = NewDomainError("SM-PROTO-4000", "malformed packet")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SM-ARG-1001", "invalid argument")

	// ErrSessionClosed indicates the session loop is no longer running.
	ErrSessionClosed = NewDomainError("SM-SYS-5030", "session closed")
)
