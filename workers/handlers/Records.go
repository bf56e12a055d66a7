package handlers

import (
	"net/http"

	"gocsprbridge/types"

	"github.com/go-chi/chi"
)

func validStatus(s string) bool {
	for _, status := range types.RecordStatuses {
		if string(status) == s {
			return true
		}
	}
	return false
}

func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	if !validStatus(status) {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "status",
			Message: "Unknown record status",
		}, http.StatusBadRequest)
		return
	}

	recs, err := h.bridge.Records(r.Context(), chi.URLParam(r, "direction"), types.RecordStatus(status))
	if err != nil {
		h.responseError(w, err, "Cannot list records")
		return
	}

	responseJSON(w, recs, http.StatusOK)
}

func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.bridge.Record(r.Context(), chi.URLParam(r, "direction"), chi.URLParam(r, "sourceTxId"))
	if err != nil {
		h.responseError(w, err, "Cannot get record")
		return
	}

	responseJSON(w, rec, http.StatusOK)
}
