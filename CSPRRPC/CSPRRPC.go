package CSPRRPC

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gocsprbridge/config"
	"gocsprbridge/types"

	"github.com/rs/zerolog"
	"github.com/ybbus/jsonrpc"
)

// info_get_deploy answers this code for an unknown deploy
const errCodeNoSuchDeploy = -32000

// Gateway is the Casper ledger gateway, calls fail over the RPC list in order
type Gateway struct {
	rpcList   []string
	clients   []jsonrpc.RPCClient
	vaultHash string
	log       zerolog.Logger
}

func NewGateway(rpcList []string, vaultHash string, timeout time.Duration, log zerolog.Logger) *Gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	clients := make([]jsonrpc.RPCClient, 0, len(rpcList))
	for _, url := range rpcList {
		clients = append(clients, jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{HTTPClient: httpClient}))
	}
	return &Gateway{
		rpcList:   rpcList,
		clients:   clients,
		vaultHash: normalizeHash(vaultHash),
		log:       log.With().Str("component", "casper-gateway").Logger(),
	}
}

func normalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "hash-")
	return strings.TrimPrefix(h, "contract-")
}

// callFor runs a v2 client call that has no context support of its own
func callFor(ctx context.Context, client jsonrpc.RPCClient, out interface{}, method string, params ...interface{}) error {
	done := make(chan error, 1)
	go func() {
		done <- client.CallFor(out, method, params...)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func isRPCError(err error) (*jsonrpc.RPCError, bool) {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// call tries every endpoint until one answers, a JSON-RPC error is an answer
func (g *Gateway) call(ctx context.Context, out interface{}, method string, params ...interface{}) (err error) {
	if len(g.clients) == 0 {
		return fmt.Errorf("%w: empty Casper rpc list", types.ErrTransientIO)
	}
	for i, client := range g.clients {
		err = callFor(ctx, client, out, method, params...)
		if err == nil {
			return nil
		}
		if _, ok := isRPCError(err); ok {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		g.log.Warn().Err(err).Str("url", g.rpcList[i]).Str("method", method).Msg("Casper RPC call failed, trying next endpoint")
	}
	return err
}

func (g *Gateway) getBlock(ctx context.Context, height *uint64) (*jsonBlock, error) {
	var res getBlockResult
	var err error
	if height == nil {
		err = g.call(ctx, &res, "chain_get_block")
	} else {
		err = g.call(ctx, &res, "chain_get_block", map[string]interface{}{
			"block_identifier": map[string]uint64{"Height": *height},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: chain_get_block: %s", types.ErrTransientIO, err)
	}
	if res.Block == nil {
		return nil, fmt.Errorf("%w: chain_get_block returned no block", types.ErrTransientIO)
	}
	return res.Block, nil
}

func (g *Gateway) getDeploy(ctx context.Context, deployHash string) (*getDeployResult, error) {
	var res getDeployResult
	err := g.call(ctx, &res, "info_get_deploy", map[string]interface{}{"deploy_hash": deployHash})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *Gateway) GetFinalizedHead(ctx context.Context) (uint64, error) {
	block, err := g.getBlock(ctx, nil)
	if err != nil {
		return 0, err
	}
	return block.Header.Height, nil
}

// ScanRange returns successful lock_cspr calls to the vault in blocks (from, to]
func (g *Gateway) ScanRange(ctx context.Context, from, to uint64) ([]types.RawEvent, error) {
	events := make([]types.RawEvent, 0)
	for height := from + 1; height <= to; height++ {
		h := height
		block, err := g.getBlock(ctx, &h)
		if err != nil {
			return nil, err
		}
		g.log.Debug().Uint64("height", h).Int("deploys", len(block.Body.DeployHashes)).Msg("scanning Casper block")

		for idx, deployHash := range block.Body.DeployHashes {
			res, err := g.getDeploy(ctx, deployHash)
			if err != nil {
				return nil, fmt.Errorf("%w: info_get_deploy %s: %s", types.ErrTransientIO, deployHash, err)
			}
			if !g.isVaultLock(res) {
				continue
			}
			events = append(events, types.RawEvent{
				Position: h,
				Index:    uint(idx),
				TxID:     strings.ToLower(deployHash),
				Data:     res.Deploy,
			})
		}
	}
	return events, nil
}

func (g *Gateway) isVaultLock(res *getDeployResult) bool {
	if len(res.ExecutionResults) == 0 || res.ExecutionResults[0].Result.Success == nil {
		return false
	}
	var d struct {
		Session ExecutableItem `json:"session"`
	}
	if err := json.Unmarshal(res.Deploy, &d); err != nil {
		g.log.Warn().Err(err).Msg("cannot decode deploy session, skipping")
		return false
	}
	call := d.Session.StoredContractByHash
	return call != nil &&
		normalizeHash(call.Hash) == g.vaultHash &&
		call.EntryPoint == config.CASPER_LOCK_ENTRYPOINT
}

func (g *Gateway) GetTransactionResult(ctx context.Context, txID string) (types.TxResult, error) {
	res, err := g.getDeploy(ctx, txID)
	if rpcErr, ok := isRPCError(err); ok && rpcErr.Code == errCodeNoSuchDeploy {
		return types.TxResult{Status: types.TxPending, Detail: rpcErr.Message}, nil
	}
	if err != nil {
		return types.TxResult{}, fmt.Errorf("%w: info_get_deploy %s: %s", types.ErrTransientIO, txID, err)
	}
	if len(res.ExecutionResults) == 0 {
		return types.TxResult{Status: types.TxPending, Detail: "deploy not executed yet"}, nil
	}

	result := res.ExecutionResults[0]
	switch {
	case result.Result.Success != nil:
		return types.TxResult{Status: types.TxSuccess, Detail: "block " + result.BlockHash}, nil
	case result.Result.Failure != nil:
		return types.TxResult{Status: types.TxRejected, Detail: result.Result.Failure.ErrorMessage}, nil
	}
	return types.TxResult{Status: types.TxPending, Detail: "unknown execution result"}, nil
}

// Broadcast takes the JSON of a signed deploy and returns its hash
func (g *Gateway) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	var d Deploy
	if err := json.Unmarshal(signedTx, &d); err != nil {
		return "", fmt.Errorf("cannot decode signed deploy: %w", err)
	}

	var res putDeployResult
	err := g.call(ctx, &res, "account_put_deploy", map[string]interface{}{"deploy": json.RawMessage(signedTx)})
	if rpcErr, ok := isRPCError(err); ok && strings.Contains(strings.ToLower(rpcErr.Message), "already") {
		// same bytes resent after a lost answer
		return d.Hash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: account_put_deploy: %s", types.ErrTransientIO, err)
	}
	if res.DeployHash != "" && !strings.EqualFold(res.DeployHash, d.Hash) {
		g.log.Warn().Str("expected", d.Hash).Str("got", res.DeployHash).Msg("node reported a different deploy hash")
	}
	return d.Hash, nil
}
