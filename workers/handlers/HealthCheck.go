package handlers

import (
	"net/http"
)

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}

func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.bridge.State(r.Context())
	if err != nil {
		h.responseError(w, err, "Cannot read bridge state")
		return
	}
	responseJSON(w, &APIStateResponse{
		Status: "ok",
		State:  state,
	}, http.StatusOK)
}
