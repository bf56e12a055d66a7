package types

// TrackedTx is a source transaction forwarded through the operator surface.
// Records are the processed records the bridge derived from it, filled on lookup.
type TrackedTx struct {
	Chain     ChainID            `json:"chain"`
	TxID      string             `json:"txId"`
	TsCreated int64              `json:"tsCreated"`
	Records   []*ProcessedRecord `json:"records,omitempty"`
}

type RouteState struct {
	Direction string         `json:"direction"`
	Head      uint64         `json:"head"`
	Cursor    uint64         `json:"cursor"`
	Records   map[string]int `json:"records"`
}

type BridgeState struct {
	Running bool         `json:"running"`
	Uptime  string       `json:"uptime,omitempty"`
	Routes  []RouteState `json:"routes"`
}
