package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/core/service"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

// Controller is the part of service.Session the control API drives.
type Controller interface {
	Status(ctx context.Context) (*service.Status, error)
	SetActive(id domain.SlotID) error
	Cycle() (domain.SlotID, bool)
	AddDummy(ctx context.Context) (domain.SlotID, error)
	SetDummyCount(ctx context.Context, n int) error
	RemoveSlot(ctx context.Context, id domain.SlotID) error
}

var _ Controller = (*service.Session)(nil)

// Handler routes control API requests to a Controller.
type Handler struct {
	ctrl    Controller
	metrics http.Handler
	logger  logger.Logger
	mux     *http.ServeMux
}

// New creates a Handler. metrics may be nil, in which case /metrics is not
// served.
func New(ctrl Controller, metrics http.Handler, l logger.Logger) *Handler {
	h := &Handler{
		ctrl:    ctrl,
		metrics: metrics,
		logger:  logger.OrDefault(l),
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	h.mux.HandleFunc("GET /v1/slots", h.handleListSlots)
	h.mux.HandleFunc("GET /v1/slots/active", h.handleGetActive)
	h.mux.HandleFunc("POST /v1/slots/active", h.handleSetActive)
	h.mux.HandleFunc("POST /v1/slots/cycle", h.handleCycle)
	h.mux.HandleFunc("DELETE /v1/slots/{id}", h.handleRemoveSlot)

	h.mux.HandleFunc("POST /v1/dummies", h.handleAddDummy)
	h.mux.HandleFunc("PUT /v1/dummies", h.handleSetDummies)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, nil)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// getRequestID returns the id the RequestID middleware stamped on the
// request.
func getRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts session errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}
	if r.Context().Err() != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrSessionClosed.Code, "request cancelled")
		return
	}

	h.logger.Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "SM-SYS-5000", "internal server error")
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4030"),
		strings.HasSuffix(code, "-4050"),
		strings.HasSuffix(code, "-4090"),
		strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4010"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "SM-ARG-"), strings.HasPrefix(code, "SM-PROTO-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-5040"):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
