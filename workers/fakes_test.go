package workers

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"gocsprbridge/ledger"
	"gocsprbridge/signer"
	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errUnreachable = fmt.Errorf("%w: connection refused", types.ErrTransientIO)

type scanCall struct {
	from, to uint64
}

// fakeGateway is an in-memory chain, every knob is guarded by mu
type fakeGateway struct {
	mu        sync.Mutex
	head      uint64
	events    []types.RawEvent
	scans     []scanCall
	scanFails int
	headFails int

	broadcasts    [][]byte
	broadcastFail int
	// results answers GetTransactionResult by poll number, starting at 1
	results func(poll int) (types.TxResult, error)
	polls   int
}

func (g *fakeGateway) setHead(h uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.head = h
}

func (g *fakeGateway) GetFinalizedHead(context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.headFails > 0 {
		g.headFails--
		return 0, errUnreachable
	}
	return g.head, nil
}

func (g *fakeGateway) ScanRange(_ context.Context, from, to uint64) ([]types.RawEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scans = append(g.scans, scanCall{from, to})
	if g.scanFails > 0 {
		g.scanFails--
		return nil, errUnreachable
	}
	res := make([]types.RawEvent, 0)
	for _, ev := range g.events {
		if ev.Position > from && ev.Position <= to {
			res = append(res, ev)
		}
	}
	return res, nil
}

func (g *fakeGateway) scanCalls() []scanCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]scanCall(nil), g.scans...)
}

func (g *fakeGateway) GetTransactionResult(context.Context, string) (types.TxResult, error) {
	g.mu.Lock()
	g.polls++
	poll := g.polls
	results := g.results
	g.mu.Unlock()
	if results == nil {
		return types.TxResult{Status: types.TxSuccess}, nil
	}
	return results(poll)
}

func (g *fakeGateway) Broadcast(_ context.Context, signedTx []byte) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, signedTx)
	if g.broadcastFail > 0 {
		g.broadcastFail--
		return "", errUnreachable
	}
	return "dest-" + string(signedTx), nil
}

func (g *fakeGateway) broadcastCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.broadcasts)
}

// fakeBuilder encodes the source tx id as the "signed" transaction
type fakeBuilder struct {
	mu     sync.Mutex
	builds int
	lock   sync.Mutex
}

func (b *fakeBuilder) BuildTx(_ context.Context, p types.BridgeProof) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builds++
	if len(p.Attestations) == 0 {
		return nil, errors.New("no attestations")
	}
	return []byte(p.Message.SourceTxID), nil
}

func (b *fakeBuilder) AccountLock() sync.Locker {
	return &b.lock
}

// rawEvent describes a lock on position pos, Data carries the source tx id
func rawEvent(pos uint64, index uint, txID string) types.RawEvent {
	return types.RawEvent{Position: pos, Index: index, TxID: txID, Data: []byte(txID)}
}

// decodeTest decodes rawEvent, "bad" prefixed ids are malformed
func decodeTest(chain types.ChainID, dest types.ChainID, amount *big.Int, recipient string) DecodeFunc {
	return func(raw types.RawEvent) (types.DomainEvent, error) {
		if len(raw.Data) >= 3 && string(raw.Data[:3]) == "bad" {
			return types.DomainEvent{}, fmt.Errorf("%w: %s", types.ErrMalformedEvent, raw.TxID)
		}
		return types.DomainEvent{
			Kind:               types.EventLocked,
			SourceChain:        chain,
			SourceTxID:         string(raw.Data),
			Amount:             new(big.Int).Set(amount),
			DestinationChain:   dest,
			DestinationAddress: recipient,
			ObservedAtBlock:    raw.Position,
			Index:              raw.Index,
		}, nil
	}
}

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.New(hex.EncodeToString(crypto.FromECDSA(key)), "0x"+hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	return s
}

func testExecutor(gw Gateway, b TxBuilder, l *ledger.Ledger, polls int) *SubmissionExecutor {
	return NewSubmissionExecutor(ExecutorParams{
		Chain:            types.CHAIN_EVM,
		Gateway:          gw,
		Builder:          b,
		Ledger:           l,
		BroadcastRetries: 3,
		RetryBackoff:     time.Millisecond,
		PollInterval:     time.Millisecond,
		MaxPollAttempts:  polls,
	}, zerolog.Nop())
}
