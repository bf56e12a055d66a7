package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocsprbridge/ledger"
	"gocsprbridge/types"

	"github.com/rs/zerolog"
)

// TxBuilder builds the signed destination transaction for a proof
type TxBuilder interface {
	BuildTx(ctx context.Context, proof types.BridgeProof) ([]byte, error)
	// AccountLock serializes build and broadcast for chains with account sequences, nil otherwise
	AccountLock() sync.Locker
}

type ExecutorParams struct {
	Chain            types.ChainID
	Gateway          Gateway
	Builder          TxBuilder
	Ledger           *ledger.Ledger
	BroadcastRetries int
	RetryBackoff     time.Duration
	PollInterval     time.Duration
	MaxPollAttempts  int
}

// SubmissionExecutor broadcasts proofs to the destination chain and follows them to a final status
type SubmissionExecutor struct {
	p   ExecutorParams
	log zerolog.Logger
}

func NewSubmissionExecutor(p ExecutorParams, log zerolog.Logger) *SubmissionExecutor {
	if p.BroadcastRetries <= 0 {
		p.BroadcastRetries = 1
	}
	if p.MaxPollAttempts <= 0 {
		p.MaxPollAttempts = 1
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = p.PollInterval
	}
	return &SubmissionExecutor{
		p:   p,
		log: log.With().Str("component", "executor").Str("chain", string(p.Chain)).Logger(),
	}
}

func (e *SubmissionExecutor) save(ctx context.Context, rec *types.ProcessedRecord) {
	if err := e.p.Ledger.Save(ctx, rec); err != nil {
		e.log.Error().Err(err).Str("sourceTxId", rec.SourceTxID).Str("status", string(rec.Status)).Msg("cannot persist processed record")
	}
}

// Submit broadcasts once per record. Retry backoffs stop with ctx, the broadcast
// call and the result polling run on a context that ignores its cancellation.
func (e *SubmissionExecutor) Submit(ctx context.Context, rec *types.ProcessedRecord, proof types.BridgeProof) (*types.ProcessedRecord, error) {
	if rec.Status.Broadcasted() {
		e.log.Info().Str("sourceTxId", rec.SourceTxID).Str("status", string(rec.Status)).Msg("already broadcast, not submitting again")
		return rec, nil
	}
	detached := context.WithoutCancel(ctx)
	log := e.log.With().Str("sourceTxId", rec.SourceTxID).Logger()

	txID, err := e.broadcast(ctx, detached, proof, log)
	if err != nil {
		if ctx.Err() != nil {
			// left pending, reported on the next start
			rec.AppendMessage("stopped before broadcast succeeded")
			e.save(detached, rec)
			return rec, err
		}
		rec.Status = types.StatusFailed
		rec.AppendMessage(fmt.Sprintf("broadcast failed: %s", err))
		log.Error().Err(err).Msg("broadcast failed, giving up")
		e.save(detached, rec)
		return rec, err
	}

	rec.Status = types.StatusSubmitted
	rec.DestinationTxID = txID
	log.Info().Str("destTxId", txID).Msg("destination transaction broadcast")
	e.save(detached, rec)

	return e.AwaitResult(detached, rec)
}

func (e *SubmissionExecutor) broadcast(ctx, detached context.Context, proof types.BridgeProof, log zerolog.Logger) (string, error) {
	if lock := e.p.Builder.AccountLock(); lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}

	var signed []byte
	var lastErr error
	for attempt := 1; attempt <= e.p.BroadcastRetries; attempt++ {
		if attempt > 1 && !sleep(ctx, e.p.RetryBackoff) {
			return "", ctx.Err()
		}

		if signed == nil {
			tx, err := e.p.Builder.BuildTx(detached, proof)
			if err != nil {
				lastErr = err
				if !errors.Is(err, types.ErrTransientIO) {
					return "", err
				}
				log.Warn().Err(err).Int("attempt", attempt).Msg("error building destination transaction")
				continue
			}
			signed = tx
		}

		// the same bytes on every attempt, a resend cannot create a second transaction
		txID, err := e.p.Gateway.Broadcast(detached, signed)
		if err == nil {
			return txID, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("error broadcasting destination transaction")
	}
	return "", fmt.Errorf("after %d attempts: %w", e.p.BroadcastRetries, lastErr)
}

// AwaitResult polls a submitted record until it is confirmed, rejected or the attempts run out
func (e *SubmissionExecutor) AwaitResult(ctx context.Context, rec *types.ProcessedRecord) (*types.ProcessedRecord, error) {
	log := e.log.With().Str("sourceTxId", rec.SourceTxID).Str("destTxId", rec.DestinationTxID).Logger()

	for attempt := 1; attempt <= e.p.MaxPollAttempts; attempt++ {
		if !sleep(ctx, e.p.PollInterval) {
			return rec, ctx.Err()
		}
		rec.Attempts++

		res, err := e.p.Gateway.GetTransactionResult(ctx, rec.DestinationTxID)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("error querying destination result")
			continue
		}

		switch res.Status {
		case types.TxSuccess:
			rec.Status = types.StatusConfirmed
			rec.AppendMessage("confirmed: " + res.Detail)
			log.Info().Int("attempt", attempt).Msg("destination transaction confirmed")
			e.save(ctx, rec)
			return rec, nil
		case types.TxRejected:
			rec.Status = types.StatusFailed
			rec.AppendMessage("rejected: " + res.Detail)
			log.Error().Str("detail", res.Detail).Msg("destination rejected the proof")
			e.save(ctx, rec)
			return rec, fmt.Errorf("%w: %s", types.ErrSubmissionRejected, res.Detail)
		default:
			log.Debug().Int("attempt", attempt).Msg("destination result not available yet")
		}
	}

	rec.Status = types.StatusFailedUnconfirmed
	rec.AppendMessage(fmt.Sprintf("no result after %d polls", e.p.MaxPollAttempts))
	log.Error().Int("attempts", e.p.MaxPollAttempts).Msg("destination result unconfirmed, needs manual check")
	e.save(ctx, rec)
	return rec, fmt.Errorf("%w: %s", types.ErrSubmissionUnconfirmed, rec.DestinationTxID)
}
