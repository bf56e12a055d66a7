package workers

import (
	"context"
	"math/big"
	"testing"
	"time"

	"gocsprbridge/ledger"
	"gocsprbridge/proof"
	"gocsprbridge/signer"
	"gocsprbridge/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testPipeline(t *testing.T, gw *fakeGateway, store ledger.Store) *Pipeline {
	t.Helper()
	l := ledger.New(execDirection, store, zerolog.Nop())
	return NewPipeline(PipelineParams{
		Direction: execDirection,
		Ledger:    l,
		Builder: proof.NewBuilder(proof.Params{
			Destination: types.CHAIN_EVM,
			SourceDec:   9,
			DestDec:     18,
			DestMaxBits: 256,
		}),
		Attester:     testSigner(t),
		Scheme:       types.SCHEME_SECP256K1,
		Executor:     testExecutor(gw, &fakeBuilder{}, l, 3),
		RetryBackoff: time.Millisecond,
	}, zerolog.Nop())
}

func lockEvent(txID string, amount int64) types.DomainEvent {
	return types.DomainEvent{
		Kind:               types.EventLocked,
		SourceChain:        types.CHAIN_CASPER,
		SourceTxID:         txID,
		Amount:             big.NewInt(amount),
		DestinationChain:   types.CHAIN_EVM,
		DestinationAddress: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
}

func TestPipelineDuplicateSubmitsOnce(t *testing.T) {
	gw := &fakeGateway{}
	p := testPipeline(t, gw, ledger.NewMemory())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, lockEvent("abc", 5_000_000_000)))
	require.NoError(t, p.Handle(ctx, lockEvent("abc", 5_000_000_000)))
	require.Equal(t, 1, gw.broadcastCount())

	rec, err := p.Ledger().Record(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, types.StatusConfirmed, rec.Status)
	require.Equal(t, "5000000000000000000", rec.Amount)
	require.Equal(t, proof.Nonce("abc"), rec.Nonce)
}

// attester captures what is signed so the attestation can be checked
type capturingAttester struct {
	inner Attester
	msgs  []types.CanonicalMessage
	atts  []types.Attestation
}

func (c *capturingAttester) Sign(msg types.CanonicalMessage, scheme types.SchemeID) (types.Attestation, error) {
	att, err := c.inner.Sign(msg, scheme)
	c.msgs = append(c.msgs, msg)
	c.atts = append(c.atts, att)
	return att, err
}

func TestPipelineCasperToEVMProof(t *testing.T) {
	gw := &fakeGateway{}
	p := testPipeline(t, gw, ledger.NewMemory())
	att := &capturingAttester{inner: p.p.Attester}
	p.p.Attester = att

	require.NoError(t, p.Handle(context.Background(), lockEvent("abc", 5_000_000_000)))

	require.Len(t, att.msgs, 1)
	msg := att.msgs[0]
	require.Equal(t, "5000000000000000000", msg.Amount.String())
	require.Equal(t, proof.Nonce("abc"), msg.Nonce)
	require.Len(t, att.atts[0].Signature, 65)
	require.NoError(t, signer.Verify(msg, att.atts[0]))
}

func TestPipelineConversionFailureRecorded(t *testing.T) {
	gw := &fakeGateway{}
	p := testPipeline(t, gw, ledger.NewMemory())
	p.p.Builder = proof.NewBuilder(proof.Params{Destination: types.CHAIN_EVM, SourceDec: 18, DestDec: 9, DestMaxBits: 512})
	ctx := context.Background()

	err := p.Handle(ctx, lockEvent("dust", 999_999_999))
	require.ErrorIs(t, err, types.ErrConversion)
	require.Equal(t, 0, gw.broadcastCount())

	rec, err := p.Ledger().Record(ctx, "dust")
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, rec.Status)

	// claimed, never retried
	require.NoError(t, p.Handle(ctx, lockEvent("dust", 999_999_999)))
	require.Equal(t, 0, gw.broadcastCount())
}

func TestPipelineIgnoresOtherChains(t *testing.T) {
	gw := &fakeGateway{}
	p := testPipeline(t, gw, ledger.NewMemory())
	ev := lockEvent("x", 1)
	ev.SourceChain = types.CHAIN_EVM
	require.NoError(t, p.Handle(context.Background(), ev))
	_, err := p.Ledger().Record(context.Background(), "x")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestPipelineWrongDestinationFails(t *testing.T) {
	gw := &fakeGateway{}
	p := testPipeline(t, gw, ledger.NewMemory())
	ev := lockEvent("x", 1_000_000_000)
	ev.DestinationChain = "solana"
	require.ErrorIs(t, p.Handle(context.Background(), ev), types.ErrMalformedEvent)
	require.Equal(t, 0, gw.broadcastCount())
}

func TestReconcileResumesSubmitted(t *testing.T) {
	gw := &fakeGateway{}
	store := ledger.NewMemory()
	p := testPipeline(t, gw, store)
	ctx := context.Background()

	rec, _ := openRecord(t, p.Ledger(), "left")
	rec.Status = types.StatusSubmitted
	rec.DestinationTxID = "dest-left"
	require.NoError(t, p.Ledger().Save(ctx, rec))
	_, _ = openRecord(t, p.Ledger(), "unknown")

	p.Reconcile(ctx)

	got, err := p.Ledger().Record(ctx, "left")
	require.NoError(t, err)
	require.Equal(t, types.StatusConfirmed, got.Status)
	pending, err := p.Ledger().Record(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, pending.Status)
	require.Equal(t, 0, gw.broadcastCount())
}

func TestReconcileMarksStoredRecordsProcessed(t *testing.T) {
	gw := &fakeGateway{}
	store := ledger.NewMemory()
	ctx := context.Background()
	// a record without its dedup entry, as left by a store restored from records only
	require.NoError(t, store.PutRecord(ctx, &types.ProcessedRecord{
		ID:         "id-done",
		SourceTxID: "done",
		Status:     types.StatusConfirmed,
	}))
	p := testPipeline(t, gw, store)

	p.Reconcile(ctx)

	require.NoError(t, p.Handle(ctx, lockEvent("done", 1_000_000_000)))
	require.Equal(t, 0, gw.broadcastCount())
	ok, err := p.Ledger().ShouldProcess(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, ok)
}
