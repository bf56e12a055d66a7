package types

import (
	"math/big"
	"time"
)

// chains are identified by name, the same string travels in events and proofs
type ChainID string

const (
	CHAIN_CASPER ChainID = "casper"
	CHAIN_EVM    ChainID = "ethereum"
)

// a direction is named after its source and destination, e.g. "casper->ethereum"
type Direction struct {
	Source      ChainID
	Destination ChainID
}

func (d Direction) String() string {
	return string(d.Source) + "->" + string(d.Destination)
}

// Key is used for storage prefixes and URL path segments
func (d Direction) Key() string {
	return string(d.Source) + "-" + string(d.Destination)
}

type EventKind string

const (
	EventLocked EventKind = "locked"
	EventBurned EventKind = "burned"
)

// DomainEvent is a decoded lock/burn observed on a source chain, immutable once observed
type DomainEvent struct {
	Kind               EventKind
	SourceChain        ChainID
	SourceTxID         string
	Amount             *big.Int // source smallest unit (motes or wei)
	DestinationChain   ChainID
	DestinationAddress string
	SenderAddress      string
	ObservedAtBlock    uint64
	Index              uint // intra-block ordering
}

// CanonicalMessage is what attestations are produced over
type CanonicalMessage struct {
	SourceChain ChainID
	SourceTxID  string
	Amount      *big.Int // destination smallest unit, post-conversion
	Recipient   string   // normalised destination address
	Nonce       uint64
}

type SchemeID string

const (
	SCHEME_SECP256K1 SchemeID = "secp256k1"
	SCHEME_ED25519   SchemeID = "ed25519"
)

type Attestation struct {
	PublicKey []byte
	Signature []byte
	Scheme    SchemeID
}

// BridgeProof carries one message and a non-empty ordered set of attestations
type BridgeProof struct {
	Message      CanonicalMessage
	Attestations []Attestation
}

type RecordStatus string

const (
	StatusPending           RecordStatus = "pending"            // passed dedup, not broadcast yet
	StatusSubmitted         RecordStatus = "submitted"          // destination transaction broadcast
	StatusConfirmed         RecordStatus = "confirmed"          // destination executed successfully
	StatusFailed            RecordStatus = "failed"             // rejected, conversion error or broadcast exhausted
	StatusFailedUnconfirmed RecordStatus = "failed_unconfirmed" // broadcast ok, result never confirmed, check manually
)

var RecordStatuses = []RecordStatus{
	StatusPending,
	StatusSubmitted,
	StatusConfirmed,
	StatusFailed,
	StatusFailedUnconfirmed,
}

// Blocks a new broadcast for the same source tx
func (s RecordStatus) Broadcasted() bool {
	return s == StatusSubmitted || s == StatusConfirmed
}

// ProcessedRecord tracks one source transaction through the destination pipeline
type ProcessedRecord struct {
	ID              string
	SourceTxID      string
	SourceChain     ChainID
	DestChain       ChainID
	Status          RecordStatus
	Amount          string // destination smallest unit
	Recipient       string
	Nonce           uint64
	DestinationTxID string
	Attempts        int
	TsCreated       int64
	TsUpdated       int64
	Message         string // messages that help to track processing/errors
}

func (r *ProcessedRecord) AppendMessage(msg string) {
	if r.Message == "" {
		r.Message = msg
	} else {
		r.Message += "; " + msg
	}
}

func (r *ProcessedRecord) Touch() {
	r.TsUpdated = time.Now().Unix()
}

// RawEvent is an undecoded match returned by a gateway range scan
type RawEvent struct {
	Position uint64
	Index    uint
	TxID     string
	Data     []byte // chain-native encoding (deploy JSON, log JSON)
}

type TxStatus string

const (
	TxPending  TxStatus = "pending" // known but not executed yet
	TxSuccess  TxStatus = "success"
	TxRejected TxStatus = "rejected"
)

type TxResult struct {
	Status TxStatus
	Detail string
}
