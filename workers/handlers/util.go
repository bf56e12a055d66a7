package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gocsprbridge/types"

	"github.com/rs/zerolog"
)

// Handlers serves the operator HTTP surface of one bridge
type Handlers struct {
	bridge Bridge
	log    zerolog.Logger
}

func New(bridge Bridge, log zerolog.Logger) *Handlers {
	return &Handlers{bridge: bridge, log: log.With().Str("component", "http").Logger()}
}

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) responseError(w http.ResponseWriter, err error, msg string) {
	code := http.StatusInternalServerError
	if errors.Is(err, types.ErrNotFound) {
		code = http.StatusNotFound
	} else if errors.Is(err, types.ErrTransientIO) {
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	}
	responseJSON(w, &APIResponse{
		Status:  "error",
		Message: msg + ": " + err.Error(),
	}, code)
}
