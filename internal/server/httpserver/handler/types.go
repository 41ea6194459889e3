package handler

import (
	"time"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// SetActiveRequest is the request body for POST /v1/slots/active.
type SetActiveRequest struct {
	SlotID *domain.SlotID `json:"slot_id"`
}

// ActiveResponse is the response body for the /v1/slots/active and
// /v1/slots/cycle endpoints. A requested switch takes effect at the next
// tick, so it is reported as pending.
type ActiveResponse struct {
	ActiveSlot  *domain.SlotID `json:"active_slot"`
	PendingSlot *domain.SlotID `json:"pending_slot,omitempty"`
	Switched    bool           `json:"switched"`
}

// SetDummiesRequest is the request body for PUT /v1/dummies.
type SetDummiesRequest struct {
	Count *int `json:"count"`
}

// DummiesResponse is the response body for the /v1/dummies endpoints.
type DummiesResponse struct {
	RequestedDummies int            `json:"requested_dummies"`
	LiveDummies      int            `json:"live_dummies"`
	DummyLimit       int            `json:"dummy_limit"`
	SlotID           *domain.SlotID `json:"slot_id,omitempty"`
}

// RemoveSlotResponse is the response body for DELETE /v1/slots/{id}.
type RemoveSlotResponse struct {
	SlotID  domain.SlotID `json:"slot_id"`
	Removed bool          `json:"removed"`
}
