package EVMRPC

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// EthClient is the subset of *ethclient.Client the bridge uses
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Close()
}

type DialFunc func(ctx context.Context, url string) (EthClient, error)

func dialEthclient(ctx context.Context, url string) (EthClient, error) {
	return ethclient.DialContext(ctx, url)
}

// Gateway is the EVM ledger gateway, every call fails over the RPC list in order
type Gateway struct {
	rpcList    []string
	dial       DialFunc
	token      common.Address
	blockBatch uint64
	log        zerolog.Logger
}

func NewGateway(rpcList []string, tokenAddress string, blockBatch uint64, log zerolog.Logger) *Gateway {
	return NewGatewayWithDialer(rpcList, tokenAddress, blockBatch, dialEthclient, log)
}

func NewGatewayWithDialer(rpcList []string, tokenAddress string, blockBatch uint64, dial DialFunc, log zerolog.Logger) *Gateway {
	if blockBatch == 0 {
		blockBatch = 512
	}
	return &Gateway{
		rpcList:    rpcList,
		dial:       dial,
		token:      common.HexToAddress(tokenAddress),
		blockBatch: blockBatch,
		log:        log.With().Str("component", "evm-gateway").Logger(),
	}
}

func withClient[T any](ctx context.Context, g *Gateway, f func(client EthClient) (T, error)) (res T, err error) {
	if len(g.rpcList) == 0 {
		return res, fmt.Errorf("%w: empty EVM rpc list", types.ErrTransientIO)
	}
	for _, url := range g.rpcList {
		var client EthClient
		client, err = g.dial(ctx, url)
		if err != nil {
			g.log.Warn().Err(err).Str("url", url).Msg("error connecting to EVM RPC")
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		g.log.Warn().Err(err).Str("url", url).Msg("EVM RPC call failed, trying next endpoint")
	}
	return
}

func (g *Gateway) GetFinalizedHead(ctx context.Context) (uint64, error) {
	head, err := withClient(ctx, g, func(client EthClient) (uint64, error) {
		return client.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %s", types.ErrTransientIO, err)
	}
	return head, nil
}

// ScanRange returns BridgeBurn logs of the token in (from, to], ordered by block and log index
func (g *Gateway) ScanRange(ctx context.Context, from, to uint64) ([]types.RawEvent, error) {
	events := make([]types.RawEvent, 0)
	for start := from + 1; start <= to; start += g.blockBatch {
		end := start + g.blockBatch - 1
		if end > to {
			end = to
		}
		g.log.Debug().Uint64("from", start).Uint64("to", end).Msg("scanning EVM blocks")

		logs, err := withClient(ctx, g, func(client EthClient) ([]ethtypes.Log, error) {
			return client.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(start),
				ToBlock:   new(big.Int).SetUint64(end),
				Addresses: []common.Address{g.token},
				Topics:    [][]common.Hash{{BurnEventID()}},
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: eth_getLogs %d..%d: %s", types.ErrTransientIO, start, end, err)
		}

		for _, l := range logs {
			if l.Removed {
				continue
			}
			data, err := json.Marshal(&l)
			if err != nil {
				return nil, fmt.Errorf("cannot marshal log: %w", err)
			}
			events = append(events, types.RawEvent{
				Position: l.BlockNumber,
				Index:    l.Index,
				TxID:     l.TxHash.Hex(),
				Data:     data,
			})
		}
	}
	return events, nil
}

func (g *Gateway) GetTransactionResult(ctx context.Context, txID string) (types.TxResult, error) {
	receipt, err := withClient(ctx, g, func(client EthClient) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, common.HexToHash(txID))
	})
	if errors.Is(err, ethereum.NotFound) {
		return types.TxResult{Status: types.TxPending, Detail: "receipt not found"}, nil
	}
	if err != nil {
		return types.TxResult{}, fmt.Errorf("%w: eth_getTransactionReceipt %s: %s", types.ErrTransientIO, txID, err)
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return types.TxResult{Status: types.TxSuccess, Detail: fmt.Sprintf("block %d", receipt.BlockNumber)}, nil
	}
	return types.TxResult{Status: types.TxRejected, Detail: fmt.Sprintf("execution reverted in block %d", receipt.BlockNumber)}, nil
}

// Broadcast takes a binary encoded signed transaction and returns its hash
func (g *Gateway) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(signedTx); err != nil {
		return "", fmt.Errorf("cannot decode signed transaction: %w", err)
	}

	_, err := withClient(ctx, g, func(client EthClient) (struct{}, error) {
		err := client.SendTransaction(ctx, tx)
		// resent bytes of a tx that already reached the pool
		if err != nil && strings.Contains(err.Error(), "already known") {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return "", fmt.Errorf("%w: eth_sendRawTransaction: %s", types.ErrTransientIO, err)
	}
	return tx.Hash().Hex(), nil
}

func (g *Gateway) pendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return withClient(ctx, g, func(client EthClient) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (g *Gateway) gasPrice(ctx context.Context) (*big.Int, error) {
	return withClient(ctx, g, func(client EthClient) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}
