package CSPRRPC

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"gocsprbridge/config"
	"gocsprbridge/signer"
	"gocsprbridge/types"

	"golang.org/x/crypto/blake2b"
)

const (
	deployTTL      = 30 * time.Minute
	deployGasPrice = 1

	publicKeyTagEd25519 byte = 0x01
	timestampLayout          = "2006-01-02T15:04:05.000Z"
)

type deployArg struct {
	name       string
	value      []byte
	clType     []byte
	clTypeJSON string
	parsed     interface{}
}

func serializeArgs(args []deployArg) []byte {
	s := new(serializer).u32(uint32(len(args)))
	for _, a := range args {
		s.str(a.name).bytes(a.value).raw(a.clType)
	}
	return s.Bytes()
}

func jsonArgs(args []deployArg) ([]NamedArg, error) {
	res := make([]NamedArg, 0, len(args))
	for _, a := range args {
		v := CLValue{CLType: json.RawMessage(a.clTypeJSON), Bytes: hex.EncodeToString(a.value)}
		if a.parsed != nil {
			parsed, err := json.Marshal(a.parsed)
			if err != nil {
				return nil, err
			}
			v.Parsed = parsed
		}
		res = append(res, NamedArg{Name: a.name, Value: v})
	}
	return res, nil
}

// ReleaseBuilder builds signed release_cspr deploys from the relayer account
type ReleaseBuilder struct {
	key       ed25519.PrivateKey
	account   []byte
	chainName string
	vaultHash []byte
	payment   *big.Int
	now       func() time.Time
}

func NewReleaseBuilder(seedHex, chainName, vaultHash string, paymentMotes uint64) (*ReleaseBuilder, error) {
	key, err := signer.ParseEd25519Seed(seedHex)
	if err != nil {
		return nil, fmt.Errorf("error instantiating Casper relayer key: %w", err)
	}
	vault, err := hex.DecodeString(normalizeHash(vaultHash))
	if err != nil || len(vault) != blake2b.Size256 {
		return nil, fmt.Errorf("invalid vault contract hash %q", vaultHash)
	}
	account := append([]byte{publicKeyTagEd25519}, key.Public().(ed25519.PublicKey)...)
	return &ReleaseBuilder{
		key:       key,
		account:   account,
		chainName: chainName,
		vaultHash: vault,
		payment:   new(big.Int).SetUint64(paymentMotes),
		now:       time.Now,
	}, nil
}

// Account is the tag-prefixed public key hex of the relayer
func (b *ReleaseBuilder) Account() string {
	return hex.EncodeToString(b.account)
}

// Deploys carry no account sequence, construction needs no serialization
func (b *ReleaseBuilder) AccountLock() sync.Locker {
	return nil
}

// List<(List<U8>, List<U8>)>
var signaturesCLType = []byte{clTypeList, clTypeTuple2, clTypeList, clTypeU8, clTypeList, clTypeU8}

func releaseArgs(p types.BridgeProof) ([]deployArg, error) {
	if len(p.Attestations) == 0 {
		return nil, errors.New("proof has no attestations")
	}
	signatures := make([]keySignature, 0, len(p.Attestations))
	for _, att := range p.Attestations {
		if att.Scheme != types.SCHEME_ED25519 {
			return nil, fmt.Errorf("vault cannot check %s attestations", att.Scheme)
		}
		signatures = append(signatures, keySignature{publicKey: att.PublicKey, signature: att.Signature})
	}

	msg := p.Message
	accountHash, err := parseAccountHash(msg.Recipient)
	if err != nil {
		return nil, err
	}

	return []deployArg{
		{name: "source_chain", value: encodeString(string(msg.SourceChain)), clType: []byte{clTypeString}, clTypeJSON: `"String"`, parsed: string(msg.SourceChain)},
		{name: "source_tx_hash", value: encodeString(msg.SourceTxID), clType: []byte{clTypeString}, clTypeJSON: `"String"`, parsed: msg.SourceTxID},
		{name: "amount", value: encodeU512(msg.Amount), clType: []byte{clTypeU512}, clTypeJSON: `"U512"`, parsed: msg.Amount.String()},
		{name: "recipient", value: encodeAccountKey(accountHash), clType: []byte{clTypeKey}, clTypeJSON: `"Key"`,
			parsed: map[string]string{"Account": accountHashPrefix + hex.EncodeToString(accountHash)}},
		{name: "nonce", value: encodeU64(msg.Nonce), clType: []byte{clTypeU64}, clTypeJSON: `"U64"`, parsed: msg.Nonce},
		{name: "signatures", value: encodeKeySignatures(signatures), clType: signaturesCLType, clTypeJSON: `{"List":{"Tuple2":[{"List":"U8"},{"List":"U8"}]}}`},
	}, nil
}

func (b *ReleaseBuilder) BuildTx(_ context.Context, p types.BridgeProof) ([]byte, error) {
	if p.Message.Amount == nil || p.Message.Amount.Sign() <= 0 {
		return nil, errors.New("release amount must be positive")
	}
	sessionArgs, err := releaseArgs(p)
	if err != nil {
		return nil, err
	}
	paymentArgs := []deployArg{
		{name: "amount", value: encodeU512(b.payment), clType: []byte{clTypeU512}, clTypeJSON: `"U512"`, parsed: b.payment.String()},
	}

	payment := new(serializer).u8(itemModuleBytes).bytes(nil).raw(serializeArgs(paymentArgs))
	session := new(serializer).u8(itemStoredContractByHash).raw(b.vaultHash).
		str(config.CASPER_RELEASE_ENTRYPOINT).raw(serializeArgs(sessionArgs))
	bodyHash := blake2b.Sum256(append(append([]byte{}, payment.Bytes()...), session.Bytes()...))

	ts := b.now().UTC().Truncate(time.Millisecond)
	header := new(serializer).
		raw(b.account).
		u64(uint64(ts.UnixMilli())).
		u64(uint64(deployTTL.Milliseconds())).
		u64(deployGasPrice).
		raw(bodyHash[:]).
		u32(0).
		str(b.chainName)
	deployHash := blake2b.Sum256(header.Bytes())
	signature := ed25519.Sign(b.key, deployHash[:])

	paymentJSON, err := jsonArgs(paymentArgs)
	if err != nil {
		return nil, err
	}
	sessionJSON, err := jsonArgs(sessionArgs)
	if err != nil {
		return nil, err
	}

	d := Deploy{
		Hash: hex.EncodeToString(deployHash[:]),
		Header: DeployHeader{
			Account:      b.Account(),
			Timestamp:    ts.Format(timestampLayout),
			TTL:          "30m",
			GasPrice:     deployGasPrice,
			BodyHash:     hex.EncodeToString(bodyHash[:]),
			Dependencies: []string{},
			ChainName:    b.chainName,
		},
		Payment: ExecutableItem{ModuleBytes: &ModuleBytes{ModuleBytes: "", Args: paymentJSON}},
		Session: ExecutableItem{StoredContractByHash: &StoredContractByHash{
			Hash:       hex.EncodeToString(b.vaultHash),
			EntryPoint: config.CASPER_RELEASE_ENTRYPOINT,
			Args:       sessionJSON,
		}},
		Approvals: []Approval{{
			Signer:    b.Account(),
			Signature: hex.EncodeToString(append([]byte{publicKeyTagEd25519}, signature...)),
		}},
	}
	return json.Marshal(d)
}
