package CSPRRPC

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gocsprbridge/config"
	"gocsprbridge/types"

	"golang.org/x/crypto/blake2b"
)

const accountHashPrefix = "account-hash-"

// DecodeLock turns a lock_cspr deploy returned by ScanRange into a domain event
func DecodeLock(raw types.RawEvent) (types.DomainEvent, error) {
	var d Deploy
	if err := json.Unmarshal(raw.Data, &d); err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s: %s", types.ErrMalformedEvent, raw.TxID, err)
	}
	call := d.Session.StoredContractByHash
	if call == nil || call.EntryPoint != config.CASPER_LOCK_ENTRYPOINT {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s is not a %s call", types.ErrMalformedEvent, raw.TxID, config.CASPER_LOCK_ENTRYPOINT)
	}

	amountArg, ok := findArg(call.Args, "amount")
	if !ok {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s has no amount", types.ErrMalformedEvent, raw.TxID)
	}
	amountBytes, err := argBytes(amountArg, "U512")
	if err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s amount: %s", types.ErrMalformedEvent, raw.TxID, err)
	}
	amount, err := decodeU512(amountBytes)
	if err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s amount: %s", types.ErrMalformedEvent, raw.TxID, err)
	}

	destChain, err := stringArg(call.Args, "destination_chain")
	if err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s: %s", types.ErrMalformedEvent, raw.TxID, err)
	}
	destAddress, err := stringArg(call.Args, "destination_address")
	if err != nil {
		return types.DomainEvent{}, fmt.Errorf("%w: deploy %s: %s", types.ErrMalformedEvent, raw.TxID, err)
	}

	txID := raw.TxID
	if txID == "" {
		txID = strings.ToLower(d.Hash)
	}
	return types.DomainEvent{
		Kind:               types.EventLocked,
		SourceChain:        types.CHAIN_CASPER,
		SourceTxID:         txID,
		Amount:             amount,
		DestinationChain:   types.ChainID(strings.ToLower(destChain)),
		DestinationAddress: destAddress,
		SenderAddress:      d.Header.Account,
		ObservedAtBlock:    raw.Position,
		Index:              raw.Index,
	}, nil
}

func argBytes(v CLValue, clType string) ([]byte, error) {
	var t string
	if err := json.Unmarshal(v.CLType, &t); err != nil || t != clType {
		return nil, fmt.Errorf("expected cl_type %s, got %s", clType, string(v.CLType))
	}
	b, err := hex.DecodeString(v.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bad hex bytes: %w", err)
	}
	return b, nil
}

func stringArg(args []NamedArg, name string) (string, error) {
	v, ok := findArg(args, name)
	if !ok {
		return "", fmt.Errorf("missing %s", name)
	}
	b, err := argBytes(v, "String")
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	s, err := decodeString(b)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if s == "" {
		return "", fmt.Errorf("empty %s", name)
	}
	return s, nil
}

// AccountHash derives the account hash of a Casper public key given as tag-prefixed hex
func AccountHash(publicKeyHex string) ([]byte, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("bad public key hex: %w", err)
	}
	var algo string
	switch {
	case len(key) == 33 && key[0] == 0x01:
		algo = "ed25519"
	case len(key) == 34 && key[0] == 0x02:
		algo = "secp256k1"
	default:
		return nil, fmt.Errorf("unsupported public key %q", publicKeyHex)
	}

	preimage := make([]byte, 0, len(algo)+1+len(key)-1)
	preimage = append(preimage, algo...)
	preimage = append(preimage, 0x00)
	preimage = append(preimage, key[1:]...)
	sum := blake2b.Sum256(preimage)
	return sum[:], nil
}

// NormalizeRecipient accepts account-hash-<hex> or a public key and returns the account-hash form
func NormalizeRecipient(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if strings.HasPrefix(address, accountHashPrefix) {
		h, err := hex.DecodeString(strings.TrimPrefix(address, accountHashPrefix))
		if err != nil || len(h) != blake2b.Size256 {
			return "", fmt.Errorf("invalid account hash %q", address)
		}
		return address, nil
	}
	h, err := AccountHash(address)
	if err != nil {
		return "", err
	}
	return accountHashPrefix + hex.EncodeToString(h), nil
}

func parseAccountHash(recipient string) ([]byte, error) {
	normalized, err := NormalizeRecipient(recipient)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(normalized, accountHashPrefix))
}
