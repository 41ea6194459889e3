package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// handleListSlots handles GET /v1/slots.
func (h *Handler) handleListSlots(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, st)
}

// handleGetActive handles GET /v1/slots/active.
func (h *Handler) handleGetActive(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ActiveResponse{
		ActiveSlot:  st.ActiveSlot,
		PendingSlot: st.PendingSlot,
	})
}

// handleSetActive handles POST /v1/slots/active.
func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-4000", "invalid request body")
		return
	}
	if req.SlotID == nil {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-1002", "slot_id is required")
		return
	}

	if err := h.ctrl.SetActive(*req.SlotID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.Info("active slot requested",
		"request_id", getRequestID(r),
		"slot_id", uint32(*req.SlotID),
	)
	h.writeJSON(w, r, http.StatusAccepted, ActiveResponse{
		PendingSlot: req.SlotID,
		Switched:    true,
	})
}

// handleCycle handles POST /v1/slots/cycle.
func (h *Handler) handleCycle(w http.ResponseWriter, r *http.Request) {
	next, ok := h.ctrl.Cycle()
	if !ok {
		h.writeJSON(w, r, http.StatusOK, ActiveResponse{Switched: false})
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, ActiveResponse{
		PendingSlot: &next,
		Switched:    true,
	})
}

// handleRemoveSlot handles DELETE /v1/slots/{id}.
func (h *Handler) handleRemoveSlot(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-1002", "invalid slot id: "+raw)
		return
	}
	id := domain.SlotID(n)

	if err := h.ctrl.RemoveSlot(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.Info("slot removed via control API",
		"request_id", getRequestID(r),
		"slot_id", uint32(id),
	)
	h.writeJSON(w, r, http.StatusOK, RemoveSlotResponse{SlotID: id, Removed: true})
}

// handleAddDummy handles POST /v1/dummies.
func (h *Handler) handleAddDummy(w http.ResponseWriter, r *http.Request) {
	id, err := h.ctrl.AddDummy(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp, err := h.dummies(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp.SlotID = &id
	h.writeJSON(w, r, http.StatusCreated, resp)
}

// handleSetDummies handles PUT /v1/dummies.
func (h *Handler) handleSetDummies(w http.ResponseWriter, r *http.Request) {
	var req SetDummiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-4000", "invalid request body")
		return
	}
	if req.Count == nil {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-1002", "count is required")
		return
	}

	if err := h.ctrl.SetDummyCount(r.Context(), *req.Count); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp, err := h.dummies(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) dummies(r *http.Request) (DummiesResponse, error) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		return DummiesResponse{}, err
	}
	resp := DummiesResponse{
		RequestedDummies: st.RequestedDummies,
		DummyLimit:       st.DummyLimit,
	}
	for _, s := range st.Slots {
		if !s.Main {
			resp.LiveDummies++
		}
	}
	return resp, nil
}
