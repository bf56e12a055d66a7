// Package ledger keeps the per-direction replay/dedup state and the
// ProcessedRecord of every source transaction that passed it.
package ledger

import (
	"context"
	"errors"
	"time"

	"gocsprbridge/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence contract, implemented in memory here and on redis by package redis.
// Claim must check membership and insert atomically.
type Store interface {
	Claim(ctx context.Context, sourceTxID string) (bool, error)
	Mark(ctx context.Context, sourceTxID string) error
	GetRecord(ctx context.Context, sourceTxID string) (*types.ProcessedRecord, error)
	PutRecord(ctx context.Context, rec *types.ProcessedRecord) error
	ListRecords(ctx context.Context, status types.RecordStatus) ([]*types.ProcessedRecord, error)
}

// Ledger is the DedupLedger of one direction
type Ledger struct {
	direction types.Direction
	store     Store
	log       zerolog.Logger
}

func New(direction types.Direction, store Store, log zerolog.Logger) *Ledger {
	return &Ledger{
		direction: direction,
		store:     store,
		log:       log.With().Str("component", "ledger").Str("direction", direction.String()).Logger(),
	}
}

func (l *Ledger) Direction() types.Direction {
	return l.direction
}

// ShouldProcess returns true exactly once per source tx id for the store's lifetime
func (l *Ledger) ShouldProcess(ctx context.Context, sourceTxID string) (bool, error) {
	ok, err := l.store.Claim(ctx, sourceTxID)
	if err != nil {
		return false, err
	}
	if !ok {
		l.log.Info().Str("sourceTxId", sourceTxID).Msg("source tx already handled, skipping")
	}
	return ok, nil
}

// MarkProcessed records the id as handled without claiming a forward pass
func (l *Ledger) MarkProcessed(ctx context.Context, sourceTxID string) error {
	return l.store.Mark(ctx, sourceTxID)
}

// Open creates the pending record for an event that passed ShouldProcess
func (l *Ledger) Open(ctx context.Context, msg types.CanonicalMessage) (*types.ProcessedRecord, error) {
	now := time.Now().Unix()
	rec := &types.ProcessedRecord{
		ID:          uuid.New().String(),
		SourceTxID:  msg.SourceTxID,
		SourceChain: l.direction.Source,
		DestChain:   l.direction.Destination,
		Status:      types.StatusPending,
		Recipient:   msg.Recipient,
		Nonce:       msg.Nonce,
		TsCreated:   now,
		TsUpdated:   now,
	}
	if msg.Amount != nil {
		rec.Amount = msg.Amount.String()
	}
	if err := l.store.PutRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Record returns a copy, types.ErrNotFound when absent
func (l *Ledger) Record(ctx context.Context, sourceTxID string) (*types.ProcessedRecord, error) {
	return l.store.GetRecord(ctx, sourceTxID)
}

func (l *Ledger) Save(ctx context.Context, rec *types.ProcessedRecord) error {
	rec.Touch()
	return l.store.PutRecord(ctx, rec)
}

func (l *Ledger) Records(ctx context.Context, status types.RecordStatus) ([]*types.ProcessedRecord, error) {
	return l.store.ListRecords(ctx, status)
}

func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
