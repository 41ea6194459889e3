package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The session is ready once its main slot
// is online.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	for _, s := range st.Slots {
		if s.Main && s.State == "online" {
			h.writeJSON(w, r, http.StatusOK, map[string]string{
				"status": "ready",
				"run_id": st.RunID,
			})
			return
		}
	}
	h.writeError(w, r, http.StatusServiceUnavailable, "SM-SYS-5031", "main slot not online")
}
