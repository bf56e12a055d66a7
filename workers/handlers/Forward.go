package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi"
)

const maxForwardBody = 1 << 20

// ForwardRequest carries a raw signed EVM transaction hex or a signed Casper deploy
type ForwardRequest struct {
	SignedTx string          `json:"signedTx,omitempty"`
	Deploy   json.RawMessage `json:"deploy,omitempty"`
}

func (h *Handlers) Forward(w http.ResponseWriter, r *http.Request) {
	chain := types.ChainID(strings.ToLower(chi.URLParam(r, "chain")))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBody))
	if err != nil {
		h.log.Warn().Err(err).Msg("Error reading request body")
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error reading request body",
		}, http.StatusBadRequest)
		return
	}

	var req ForwardRequest
	if err := json.Unmarshal(body, &req); err != nil {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot unmarshal input JSON",
		}, http.StatusBadRequest)
		return
	}

	var signed []byte
	switch chain {
	case types.CHAIN_EVM:
		signed, err = hexutil.Decode(req.SignedTx)
		if err != nil {
			responseJSON(w, &APIResponse{
				Status:  "error",
				Field:   "signedTx",
				Message: "No signed transaction or invalid hex provided",
			}, http.StatusBadRequest)
			return
		}
	case types.CHAIN_CASPER:
		if len(req.Deploy) == 0 {
			responseJSON(w, &APIResponse{
				Status:  "error",
				Field:   "deploy",
				Message: "No signed deploy provided",
			}, http.StatusBadRequest)
			return
		}
		signed = req.Deploy
	default:
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "chain",
			Message: "Unknown chain",
		}, http.StatusNotFound)
		return
	}

	txID, err := h.bridge.Forward(r.Context(), chain, signed)
	if err != nil {
		h.responseError(w, err, "Cannot forward transaction")
		return
	}

	responseJSON(w, &APIForwardResponse{
		Status: "ok",
		TxID:   txID,
	}, http.StatusOK)
}

func (h *Handlers) Tracked(w http.ResponseWriter, r *http.Request) {
	chain := types.ChainID(strings.ToLower(chi.URLParam(r, "chain")))
	tx, res, err := h.bridge.Tracked(r.Context(), chain, chi.URLParam(r, "txId"))
	if err != nil {
		h.responseError(w, err, "Cannot get tracked transaction")
		return
	}

	responseJSON(w, &APITrackedResponse{
		Status:    "ok",
		Chain:     tx.Chain,
		TxID:      tx.TxID,
		TsCreated: tx.TsCreated,
		Result:    res.Status,
		Detail:    res.Detail,
		Records:   tx.Records,
	}, http.StatusOK)
}
