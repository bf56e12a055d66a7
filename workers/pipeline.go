package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocsprbridge/ledger"
	"gocsprbridge/proof"
	"gocsprbridge/types"

	"github.com/rs/zerolog"
)

// Attester produces this relayer's attestation over a canonical message
type Attester interface {
	Sign(msg types.CanonicalMessage, scheme types.SchemeID) (types.Attestation, error)
}

type PipelineParams struct {
	Direction    types.Direction
	Ledger       *ledger.Ledger
	Builder      *proof.Builder
	Attester     Attester
	Scheme       types.SchemeID
	Executor     *SubmissionExecutor
	RetryBackoff time.Duration
}

// Pipeline handles the events of one direction one at a time, in arrival order
type Pipeline struct {
	p   PipelineParams
	log zerolog.Logger
}

func NewPipeline(p PipelineParams, log zerolog.Logger) *Pipeline {
	if p.RetryBackoff == 0 {
		p.RetryBackoff = 5 * time.Second
	}
	return &Pipeline{
		p:   p,
		log: log.With().Str("component", "pipeline").Str("direction", p.Direction.String()).Logger(),
	}
}

func (p *Pipeline) Direction() types.Direction {
	return p.p.Direction
}

func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.p.Ledger
}

// Run consumes in until ctx is done, the event in hand is finished first
func (p *Pipeline) Run(ctx context.Context, in <-chan types.DomainEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-in:
			if err := p.Handle(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
				p.log.Debug().Err(err).Str("sourceTxId", ev.SourceTxID).Msg("event handled with error")
			}
		}
	}
}

func (p *Pipeline) claim(ctx context.Context, sourceTxID string) (bool, error) {
	for {
		ok, err := p.p.Ledger.ShouldProcess(ctx, sourceTxID)
		if err == nil {
			return ok, nil
		}
		p.log.Warn().Err(err).Str("sourceTxId", sourceTxID).Msg("dedup ledger unavailable, retrying")
		if !sleep(ctx, p.p.RetryBackoff) {
			return false, ctx.Err()
		}
	}
}

// fail records a claimed event that cannot become a proof, it is never retried
func (p *Pipeline) fail(ctx context.Context, ev types.DomainEvent, cause error) error {
	rec, err := p.p.Ledger.Open(ctx, types.CanonicalMessage{
		SourceChain: ev.SourceChain,
		SourceTxID:  ev.SourceTxID,
		Recipient:   ev.DestinationAddress,
		Nonce:       proof.Nonce(ev.SourceTxID),
	})
	if err != nil {
		p.log.Error().Err(err).Str("sourceTxId", ev.SourceTxID).Msg("cannot record failed event")
		return cause
	}
	rec.Status = types.StatusFailed
	rec.AppendMessage(cause.Error())
	if err := p.p.Ledger.Save(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("sourceTxId", ev.SourceTxID).Msg("cannot record failed event")
	}
	return cause
}

// Handle runs dedup, proof building, signing and submission for one event
func (p *Pipeline) Handle(ctx context.Context, ev types.DomainEvent) error {
	log := p.log.With().Str("sourceTxId", ev.SourceTxID).Logger()
	if ev.SourceChain != p.p.Direction.Source {
		log.Warn().Str("chain", string(ev.SourceChain)).Msg("event from another chain, ignoring")
		return nil
	}

	ok, err := p.claim(ctx, ev.SourceTxID)
	if err != nil || !ok {
		return err
	}

	msg, err := p.p.Builder.Build(ev)
	if err != nil {
		if errors.Is(err, types.ErrConversion) {
			log.Error().Err(err).Str("amount", ev.Amount.String()).Msg("amount cannot be bridged")
		} else {
			log.Warn().Err(err).Msg("event cannot be bridged")
		}
		return p.fail(ctx, ev, err)
	}

	att, err := p.p.Attester.Sign(msg, p.p.Scheme)
	if err != nil {
		log.Error().Err(err).Msg("cannot sign canonical message")
		return p.fail(ctx, ev, fmt.Errorf("signing: %w", err))
	}

	rec, err := p.p.Ledger.Open(ctx, msg)
	if err != nil {
		// claimed but unrecorded, only visible in the logs
		log.Error().Err(err).Msg("cannot create processed record")
		return err
	}
	log.Info().Str("amount", msg.Amount.String()).Str("recipient", msg.Recipient).Uint64("nonce", msg.Nonce).Msg("submitting proof")

	_, err = p.p.Executor.Submit(ctx, rec, types.BridgeProof{
		Message:      msg,
		Attestations: []types.Attestation{att},
	})
	return err
}

// Reconcile rebuilds the dedup state from stored records and resumes the
// ones a previous run left behind
func (p *Pipeline) Reconcile(ctx context.Context) {
	byStatus := make(map[types.RecordStatus][]*types.ProcessedRecord, len(types.RecordStatuses))
	for _, status := range types.RecordStatuses {
		recs, err := p.p.Ledger.Records(ctx, status)
		if err != nil {
			p.log.Error().Err(err).Str("status", string(status)).Msg("cannot list records")
			continue
		}
		byStatus[status] = recs
		for _, rec := range recs {
			if err := p.p.Ledger.MarkProcessed(ctx, rec.SourceTxID); err != nil {
				p.log.Error().Err(err).Str("sourceTxId", rec.SourceTxID).Msg("cannot mark stored record as processed")
			}
		}
	}

	for _, rec := range byStatus[types.StatusSubmitted] {
		p.log.Info().Str("sourceTxId", rec.SourceTxID).Str("destTxId", rec.DestinationTxID).Msg("resuming confirmation of submitted record")
		_, _ = p.p.Executor.AwaitResult(context.WithoutCancel(ctx), rec)
	}

	for _, rec := range byStatus[types.StatusPending] {
		p.log.Warn().Str("sourceTxId", rec.SourceTxID).Str("message", rec.Message).
			Msg("record left pending by a previous run, broadcast state unknown, needs manual check")
	}
}
