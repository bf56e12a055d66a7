package workers

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"gocsprbridge/types"

	"github.com/rs/zerolog"
)

// Gateway is the ledger access both chains implement
type Gateway interface {
	GetFinalizedHead(ctx context.Context) (uint64, error)
	// ScanRange returns matches in (from, to]
	ScanRange(ctx context.Context, from, to uint64) ([]types.RawEvent, error)
	GetTransactionResult(ctx context.Context, txID string) (types.TxResult, error)
	Broadcast(ctx context.Context, signedTx []byte) (string, error)
}

// DecodeFunc extracts a domain event from a chain-native encoding
type DecodeFunc func(raw types.RawEvent) (types.DomainEvent, error)

type CursorStore interface {
	GetScannedBlock(ctx context.Context, chain types.ChainID) (uint64, bool, error)
	SetScannedBlock(ctx context.Context, chain types.ChainID, pos uint64) error
}

type WatcherParams struct {
	Chain         types.ChainID
	Gateway       Gateway
	Decode        DecodeFunc
	Cursors       CursorStore
	Confirmations uint64
	PollInterval  time.Duration
	RetryBackoff  time.Duration
	// upper bound of positions per scanned range
	BlockBatch uint64
	// first cursor when nothing is stored, 0 starts at the current safe head
	StartBlock uint64
}

// ChainWatcher turns a chain into an ordered stream of bridge events
type ChainWatcher struct {
	p      WatcherParams
	log    zerolog.Logger
	cursor atomic.Uint64
	head   atomic.Uint64
}

func NewChainWatcher(p WatcherParams, log zerolog.Logger) *ChainWatcher {
	if p.RetryBackoff == 0 {
		p.RetryBackoff = p.PollInterval
	}
	return &ChainWatcher{
		p:   p,
		log: log.With().Str("component", "watcher").Str("chain", string(p.Chain)).Logger(),
	}
}

func (w *ChainWatcher) Chain() types.ChainID {
	return w.p.Chain
}

// Cursor is the last fully scanned position
func (w *ChainWatcher) Cursor() uint64 {
	return w.cursor.Load()
}

// Head is the last finalized head seen
func (w *ChainWatcher) Head() uint64 {
	return w.head.Load()
}

// sleep returns false when ctx is done first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func safeHead(head, depth uint64) uint64 {
	if head < depth {
		return 0
	}
	return head - depth
}

func (w *ChainWatcher) initCursor(ctx context.Context) (uint64, error) {
	if w.p.Cursors != nil {
		pos, ok, err := w.p.Cursors.GetScannedBlock(ctx, w.p.Chain)
		if err != nil {
			return 0, err
		}
		if ok {
			w.log.Info().Uint64("cursor", pos).Msg("resuming from stored cursor")
			return pos, nil
		}
	}
	if w.p.StartBlock > 0 {
		// the configured block itself is scanned
		return w.p.StartBlock - 1, nil
	}
	head, err := w.p.Gateway.GetFinalizedHead(ctx)
	if err != nil {
		return 0, err
	}
	w.head.Store(head)
	pos := safeHead(head, w.p.Confirmations)
	w.log.Info().Uint64("cursor", pos).Msg("no stored cursor, starting from safe head")
	return pos, nil
}

// Run emits events into out until ctx is done, sends block until received
func (w *ChainWatcher) Run(ctx context.Context, out chan<- types.DomainEvent) error {
	var cursor uint64
	for {
		var err error
		cursor, err = w.initCursor(ctx)
		if err == nil {
			break
		}
		w.log.Warn().Err(err).Msg("cannot initialise cursor, retrying")
		if !sleep(ctx, w.p.RetryBackoff) {
			return nil
		}
	}
	w.cursor.Store(cursor)
	w.log.Info().Msg("watcher started")

	for {
		if ctx.Err() != nil {
			w.log.Info().Uint64("cursor", cursor).Msg("watcher stopped")
			return nil
		}

		next, backoff := w.tick(ctx, cursor, out)
		if next > cursor {
			cursor = next
			w.cursor.Store(cursor)
			if w.p.Cursors != nil {
				if err := w.p.Cursors.SetScannedBlock(ctx, w.p.Chain, cursor); err != nil && !errors.Is(err, context.Canceled) {
					w.log.Error().Err(err).Uint64("cursor", cursor).Msg("cannot persist cursor")
				}
			}
		}

		if backoff > 0 && !sleep(ctx, backoff) {
			w.log.Info().Uint64("cursor", cursor).Msg("watcher stopped")
			return nil
		}
	}
}

// tick scans at most one batch past cursor, returns the new cursor and how long to wait
func (w *ChainWatcher) tick(ctx context.Context, cursor uint64, out chan<- types.DomainEvent) (uint64, time.Duration) {
	head, err := w.p.Gateway.GetFinalizedHead(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("error reading finalized head")
		}
		return cursor, w.p.RetryBackoff
	}
	w.head.Store(head)

	safe := safeHead(head, w.p.Confirmations)
	if safe <= cursor {
		return cursor, w.p.PollInterval
	}
	to := safe
	if w.p.BlockBatch > 0 && to-cursor > w.p.BlockBatch {
		to = cursor + w.p.BlockBatch
	}

	w.log.Debug().Uint64("from", cursor).Uint64("to", to).Uint64("head", head).Msg("scanning range")
	raw, err := w.p.Gateway.ScanRange(ctx, cursor, to)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Uint64("from", cursor).Uint64("to", to).Msg("error scanning range")
		}
		return cursor, w.p.RetryBackoff
	}

	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].Position != raw[j].Position {
			return raw[i].Position < raw[j].Position
		}
		return raw[i].Index < raw[j].Index
	})

	for _, r := range raw {
		ev, err := w.p.Decode(r)
		if err != nil {
			w.log.Warn().Err(err).Str("txId", r.TxID).Uint64("position", r.Position).Msg("skipping undecodable event")
			continue
		}
		w.log.Info().Str("sourceTxId", ev.SourceTxID).Str("amount", ev.Amount.String()).
			Str("destination", ev.DestinationAddress).Uint64("block", ev.ObservedAtBlock).Msg("found bridge event")

		select {
		case out <- ev:
		case <-ctx.Done():
			// range not finished, rescanned next start
			return cursor, 0
		}
	}

	if to < safe {
		// more to catch up on, no wait
		return to, 0
	}
	return to, w.p.PollInterval
}
