package CSPRRPC

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gocsprbridge/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

var testVault = strings.Repeat("ab", 32)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeNode serves chain_get_block, info_get_deploy and account_put_deploy
type fakeNode struct {
	mu       sync.Mutex
	head     uint64
	blocks   map[uint64][]string
	deploys  map[string]getDeployResult
	received []json.RawMessage
}

func newFakeNode() *fakeNode {
	return &fakeNode{blocks: map[uint64][]string{}, deploys: map[string]getDeployResult{}}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result interface{}
	var rpcErr map[string]interface{}
	switch req.Method {
	case "chain_get_block":
		height := n.head
		if len(req.Params) > 0 {
			var p struct {
				BlockIdentifier struct {
					Height uint64 `json:"Height"`
				} `json:"block_identifier"`
			}
			_ = json.Unmarshal(req.Params, &p)
			height = p.BlockIdentifier.Height
		}
		block := map[string]interface{}{
			"hash":   "blk",
			"header": map[string]uint64{"height": height},
			"body":   map[string][]string{"deploy_hashes": n.blocks[height]},
		}
		result = map[string]interface{}{"block": block}
	case "info_get_deploy":
		var p struct {
			DeployHash string `json:"deploy_hash"`
		}
		_ = json.Unmarshal(req.Params, &p)
		res, ok := n.deploys[p.DeployHash]
		if !ok {
			rpcErr = map[string]interface{}{"code": errCodeNoSuchDeploy, "message": "No such deploy"}
		} else {
			result = res
		}
	case "account_put_deploy":
		var p struct {
			Deploy json.RawMessage `json:"deploy"`
		}
		_ = json.Unmarshal(req.Params, &p)
		var d Deploy
		_ = json.Unmarshal(p.Deploy, &d)
		n.received = append(n.received, p.Deploy)
		result = map[string]string{"deploy_hash": d.Hash}
	default:
		rpcErr = map[string]interface{}{"code": -32601, "message": "method not found"}
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func lockDeploy(t *testing.T, hash, vault, entryPoint string, amount *big.Int, destChain, destAddr string) json.RawMessage {
	t.Helper()
	args, err := jsonArgs([]deployArg{
		{name: "amount", value: encodeU512(amount), clTypeJSON: `"U512"`, parsed: amount.String()},
		{name: "destination_chain", value: encodeString(destChain), clTypeJSON: `"String"`, parsed: destChain},
		{name: "destination_address", value: encodeString(destAddr), clTypeJSON: `"String"`, parsed: destAddr},
	})
	require.NoError(t, err)
	d := Deploy{
		Hash:    hash,
		Header:  DeployHeader{Account: "01" + strings.Repeat("cd", 32), ChainName: "casper-test"},
		Session: ExecutableItem{StoredContractByHash: &StoredContractByHash{Hash: "hash-" + vault, EntryPoint: entryPoint, Args: args}},
	}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	return raw
}

func success() []executionResult {
	var r executionResult
	r.BlockHash = "blk"
	ok := json.RawMessage(`{"cost":"1"}`)
	r.Result.Success = &ok
	return []executionResult{r}
}

func failure(msg string) []executionResult {
	var r executionResult
	r.BlockHash = "blk"
	r.Result.Failure = &struct {
		ErrorMessage string `json:"error_message"`
	}{ErrorMessage: msg}
	return []executionResult{r}
}

func startNode(t *testing.T, n *fakeNode) *httptest.Server {
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return srv
}

func TestBytesrepr(t *testing.T) {
	require.Equal(t, "00", hex.EncodeToString(encodeU512(big.NewInt(0))))
	require.Equal(t, "0500f2052a01", hex.EncodeToString(encodeU512(big.NewInt(5_000_000_000))))
	require.Equal(t, "03000000616263", hex.EncodeToString(encodeString("abc")))
	require.Equal(t, "0100000000000000", hex.EncodeToString(encodeU64(1)))

	v, err := decodeU512(encodeU512(big.NewInt(5_000_000_000)))
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000_000), v.Int64())
	s, err := decodeString(encodeString("casper"))
	require.NoError(t, err)
	require.Equal(t, "casper", s)

	_, err = decodeU512([]byte{2, 1})
	require.Error(t, err)
	_, err = decodeString([]byte{9, 0, 0, 0, 'a'})
	require.Error(t, err)
}

func TestNormalizeRecipient(t *testing.T) {
	h := strings.Repeat("0A", 32)
	got, err := NormalizeRecipient("account-hash-" + h)
	require.NoError(t, err)
	require.Equal(t, "account-hash-"+strings.ToLower(h), got)

	pub := make([]byte, 32)
	want := blake2b.Sum256(append([]byte("ed25519\x00"), pub...))
	got, err = NormalizeRecipient("01" + hex.EncodeToString(pub))
	require.NoError(t, err)
	require.Equal(t, "account-hash-"+hex.EncodeToString(want[:]), got)

	_, err = NormalizeRecipient("account-hash-1234")
	require.Error(t, err)
	_, err = NormalizeRecipient("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.Error(t, err)
}

func TestScanRangeAndDecode(t *testing.T) {
	node := newFakeNode()
	node.head = 10
	amount := big.NewInt(5_000_000_000)
	node.blocks[5] = []string{"lock", "other", "failed"}
	node.blocks[7] = []string{"lock2"}
	node.deploys["lock"] = getDeployResult{Deploy: lockDeploy(t, "lock", testVault, "lock_cspr", amount, "ethereum", "0xabc"), ExecutionResults: success()}
	node.deploys["other"] = getDeployResult{Deploy: lockDeploy(t, "other", strings.Repeat("11", 32), "lock_cspr", amount, "ethereum", "0xabc"), ExecutionResults: success()}
	node.deploys["failed"] = getDeployResult{Deploy: lockDeploy(t, "failed", testVault, "lock_cspr", amount, "ethereum", "0xabc"), ExecutionResults: failure("User error: 1")}
	node.deploys["lock2"] = getDeployResult{Deploy: lockDeploy(t, "lock2", testVault, "lock_cspr", big.NewInt(1), "Ethereum", "0xdef"), ExecutionResults: success()}
	srv := startNode(t, node)

	g := NewGateway([]string{srv.URL}, "hash-"+testVault, time.Second, zerolog.Nop())
	ctx := context.Background()

	head, err := g.GetFinalizedHead(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10), head)

	events, err := g.ScanRange(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "lock", events[0].TxID)
	require.Equal(t, uint64(5), events[0].Position)
	require.Equal(t, uint(0), events[0].Index)
	require.Equal(t, "lock2", events[1].TxID)

	ev, err := DecodeLock(events[0])
	require.NoError(t, err)
	require.Equal(t, types.EventLocked, ev.Kind)
	require.Equal(t, types.CHAIN_CASPER, ev.SourceChain)
	require.Equal(t, "lock", ev.SourceTxID)
	require.Equal(t, 0, amount.Cmp(ev.Amount))
	require.Equal(t, types.CHAIN_EVM, ev.DestinationChain)
	require.Equal(t, "0xabc", ev.DestinationAddress)
	require.Equal(t, "01"+strings.Repeat("cd", 32), ev.SenderAddress)

	ev, err = DecodeLock(events[1])
	require.NoError(t, err)
	require.Equal(t, types.CHAIN_EVM, ev.DestinationChain)

	// nothing past the cursor
	events, err = g.ScanRange(ctx, 10, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDecodeLockMalformed(t *testing.T) {
	_, err := DecodeLock(types.RawEvent{TxID: "x", Data: []byte(`{`)})
	require.ErrorIs(t, err, types.ErrMalformedEvent)

	raw := lockDeploy(t, "x", testVault, "lock_cspr", big.NewInt(1), "ethereum", "")
	_, err = DecodeLock(types.RawEvent{TxID: "x", Data: raw})
	require.ErrorIs(t, err, types.ErrMalformedEvent)

	raw = lockDeploy(t, "x", testVault, "release_cspr", big.NewInt(1), "ethereum", "0xabc")
	_, err = DecodeLock(types.RawEvent{TxID: "x", Data: raw})
	require.ErrorIs(t, err, types.ErrMalformedEvent)
}

func TestTransactionResult(t *testing.T) {
	node := newFakeNode()
	node.deploys["ok"] = getDeployResult{Deploy: json.RawMessage(`{}`), ExecutionResults: success()}
	node.deploys["bad"] = getDeployResult{Deploy: json.RawMessage(`{}`), ExecutionResults: failure("User error: 7")}
	node.deploys["queued"] = getDeployResult{Deploy: json.RawMessage(`{}`)}
	srv := startNode(t, node)
	g := NewGateway([]string{srv.URL}, testVault, time.Second, zerolog.Nop())
	ctx := context.Background()

	res, err := g.GetTransactionResult(ctx, "ok")
	require.NoError(t, err)
	require.Equal(t, types.TxSuccess, res.Status)

	res, err = g.GetTransactionResult(ctx, "bad")
	require.NoError(t, err)
	require.Equal(t, types.TxRejected, res.Status)
	require.Equal(t, "User error: 7", res.Detail)

	res, err = g.GetTransactionResult(ctx, "queued")
	require.NoError(t, err)
	require.Equal(t, types.TxPending, res.Status)

	res, err = g.GetTransactionResult(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, types.TxPending, res.Status)
}

func TestFailover(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	node := newFakeNode()
	node.head = 3
	srv := startNode(t, node)

	g := NewGateway([]string{down.URL, srv.URL}, testVault, time.Second, zerolog.Nop())
	head, err := g.GetFinalizedHead(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), head)

	g = NewGateway([]string{down.URL}, testVault, time.Second, zerolog.Nop())
	_, err = g.GetFinalizedHead(context.Background())
	require.ErrorIs(t, err, types.ErrTransientIO)
}

func TestReleaseBuildAndBroadcast(t *testing.T) {
	seed := strings.Repeat("07", 32)
	b, err := NewReleaseBuilder(seed, "casper-test", "hash-"+testVault, 5_000_000_000)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC) }
	require.Nil(t, b.AccountLock())

	attKey := ed25519.NewKeyFromSeed(make([]byte, 32))
	p := types.BridgeProof{
		Message: types.CanonicalMessage{
			SourceChain: types.CHAIN_EVM,
			SourceTxID:  "0xfeed",
			Amount:      big.NewInt(5),
			Recipient:   "account-hash-" + strings.Repeat("0a", 32),
			Nonce:       9,
		},
		Attestations: []types.Attestation{{
			PublicKey: attKey.Public().(ed25519.PublicKey),
			Signature: make([]byte, ed25519.SignatureSize),
			Scheme:    types.SCHEME_ED25519,
		}},
	}

	raw, err := b.BuildTx(context.Background(), p)
	require.NoError(t, err)

	var d Deploy
	require.NoError(t, json.Unmarshal(raw, &d))
	require.Equal(t, "2026-01-02T03:04:05.006Z", d.Header.Timestamp)
	require.Equal(t, "30m", d.Header.TTL)
	require.Equal(t, "casper-test", d.Header.ChainName)
	require.Equal(t, b.Account(), d.Header.Account)
	require.Equal(t, "release_cspr", d.Session.StoredContractByHash.EntryPoint)
	require.Equal(t, testVault, d.Session.StoredContractByHash.Hash)

	names := make([]string, 0)
	for _, a := range d.Session.StoredContractByHash.Args {
		names = append(names, a.Name)
	}
	require.Equal(t, []string{"source_chain", "source_tx_hash", "amount", "recipient", "nonce", "signatures"}, names)

	// Vec<(Vec<u8>, Vec<u8>)> of (public_key, signature)
	sigs, ok := findArg(d.Session.StoredContractByHash.Args, "signatures")
	require.True(t, ok)
	require.JSONEq(t, `{"List":{"Tuple2":[{"List":"U8"},{"List":"U8"}]}}`, string(sigs.CLType))
	wantSigs := "01000000" +
		"20000000" + hex.EncodeToString(attKey.Public().(ed25519.PublicKey)) +
		"40000000" + strings.Repeat("00", ed25519.SignatureSize)
	require.Equal(t, wantSigs, sigs.Bytes)
	require.Equal(t, []byte{14, 19, 14, 3, 14, 3}, signaturesCLType)

	recipient, ok := findArg(d.Session.StoredContractByHash.Args, "recipient")
	require.True(t, ok)
	require.Equal(t, "00"+strings.Repeat("0a", 32), recipient.Bytes)

	// the approval signs the deploy hash with the account key
	hash, err := hex.DecodeString(d.Hash)
	require.NoError(t, err)
	require.Len(t, d.Approvals, 1)
	sig, err := hex.DecodeString(d.Approvals[0].Signature)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), sig[0])
	pub, err := hex.DecodeString(b.Account())
	require.NoError(t, err)
	require.True(t, ed25519.Verify(pub[1:], hash, sig[1:]))

	node := newFakeNode()
	srv := startNode(t, node)
	g := NewGateway([]string{srv.URL}, testVault, time.Second, zerolog.Nop())
	got, err := g.Broadcast(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, d.Hash, got)
	require.Len(t, node.received, 1)

	_, err = b.BuildTx(context.Background(), types.BridgeProof{Message: p.Message})
	require.Error(t, err)
}
