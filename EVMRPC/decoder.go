package EVMRPC

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"gocsprbridge/types"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const tokenABI = `[{"anonymous":false,"inputs":[
{"indexed":true,"name":"sender","type":"address"},
{"indexed":false,"name":"amount","type":"uint256"},
{"indexed":false,"name":"destinationChain","type":"string"},
{"indexed":false,"name":"destinationAddress","type":"string"}],
"name":"BridgeBurn","type":"event"}]`

const verifierABI = `[{"inputs":[
{"name":"sourceChain","type":"string"},
{"name":"sourceTxId","type":"string"},
{"name":"amount","type":"uint256"},
{"name":"recipient","type":"address"},
{"name":"nonce","type":"uint64"},
{"name":"signatures","type":"bytes[]"}],
"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const (
	burnEventName  = "BridgeBurn"
	mintMethodName = "mint"
)

var (
	parsedTokenABI    = mustABI(tokenABI)
	parsedVerifierABI = mustABI(verifierABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// BurnEventID is topic0 of BridgeBurn
func BurnEventID() common.Hash {
	return parsedTokenABI.Events[burnEventName].ID
}

// BurnID identifies one burn, a transaction may emit several
func BurnID(txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash.Hex(), logIndex)
}

// DecodeBurn turns a BridgeBurn log returned by ScanRange into a domain event
func DecodeBurn(raw types.RawEvent) (types.DomainEvent, error) {
	var l ethtypes.Log
	if err := json.Unmarshal(raw.Data, &l); err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: log %s: %s", types.ErrMalformedEvent, raw.TxID, err)
	}

	event := parsedTokenABI.Events[burnEventName]
	if len(l.Topics) != 2 || l.Topics[0] != event.ID {
		return types.DomainEvent{}, fmt.Errorf("%w: log %s is not a %s event", types.ErrMalformedEvent, raw.TxID, burnEventName)
	}

	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) != 3 {
		return types.DomainEvent{}, fmt.Errorf("%w: log %s data: %v", types.ErrMalformedEvent, raw.TxID, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return types.DomainEvent{}, fmt.Errorf("%w: log %s amount is not uint256", types.ErrMalformedEvent, raw.TxID)
	}
	destChain, ok1 := values[1].(string)
	destAddress, ok2 := values[2].(string)
	if !ok1 || !ok2 || destAddress == "" {
		return types.DomainEvent{}, fmt.Errorf("%w: log %s destination fields", types.ErrMalformedEvent, raw.TxID)
	}

	return types.DomainEvent{
		Kind:               types.EventBurned,
		SourceChain:        types.CHAIN_EVM,
		SourceTxID:         BurnID(l.TxHash, l.Index),
		Amount:             amount,
		DestinationChain:   types.ChainID(strings.ToLower(destChain)),
		DestinationAddress: destAddress,
		SenderAddress:      common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		ObservedAtBlock:    l.BlockNumber,
		Index:              l.Index,
	}, nil
}

// NormalizeRecipient validates an EVM address and returns its checksummed form
func NormalizeRecipient(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid EVM address %q", address)
	}
	checksummed := common.HexToAddress(address).Hex()
	if err := ethav.Validate(checksummed); err != nil {
		return "", fmt.Errorf("invalid EVM address %q: %w", address, err)
	}
	return checksummed, nil
}
