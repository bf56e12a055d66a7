package handlers

import (
	"context"

	"gocsprbridge/types"
)

// Bridge is what the operator surface reads and drives
type Bridge interface {
	State(ctx context.Context) (types.BridgeState, error)
	Records(ctx context.Context, directionKey string, status types.RecordStatus) ([]*types.ProcessedRecord, error)
	Record(ctx context.Context, directionKey, sourceTxID string) (*types.ProcessedRecord, error)
	Forward(ctx context.Context, chain types.ChainID, signedTx []byte) (string, error)
	Tracked(ctx context.Context, chain types.ChainID, txID string) (types.TrackedTx, types.TxResult, error)
}

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status string            `json:"status"`
	State  types.BridgeState `json:"state"`
}

type APIForwardResponse struct {
	Status string `json:"status"`
	TxID   string `json:"txId"`
}

type APITrackedResponse struct {
	Status    string                   `json:"status"`
	Chain     types.ChainID            `json:"chain"`
	TxID      string                   `json:"txId"`
	TsCreated int64                    `json:"tsCreated"`
	Result    types.TxStatus           `json:"result"`
	Detail    string                   `json:"detail"`
	Records   []*types.ProcessedRecord `json:"records"`
}
