package EVMRPC

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MintBuilder builds signed mint calls to the verifier contract from the relayer account
type MintBuilder struct {
	gateway  *Gateway
	key      *ecdsa.PrivateKey
	from     common.Address
	verifier common.Address
	chainID  *big.Int
	gasLimit uint64

	// one account, one nonce sequence
	mu sync.Mutex
}

func NewMintBuilder(gateway *Gateway, privateKeyHex string, verifierAddress string, chainID int64, gasLimit uint64) (*MintBuilder, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error instantiating EVM relayer key: %w", err)
	}
	if !common.IsHexAddress(verifierAddress) {
		return nil, fmt.Errorf("invalid verifier address %q", verifierAddress)
	}
	return &MintBuilder{
		gateway:  gateway,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		verifier: common.HexToAddress(verifierAddress),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
	}, nil
}

func (b *MintBuilder) From() common.Address {
	return b.from
}

// AccountLock must be held from BuildTx until the broadcast of its bytes returned
func (b *MintBuilder) AccountLock() sync.Locker {
	return &b.mu
}

// PackMint ABI-encodes the verifier call for a proof
func PackMint(p types.BridgeProof) ([]byte, error) {
	if len(p.Attestations) == 0 {
		return nil, errors.New("proof has no attestations")
	}
	signatures := make([][]byte, 0, len(p.Attestations))
	for _, att := range p.Attestations {
		if att.Scheme != types.SCHEME_SECP256K1 {
			return nil, fmt.Errorf("verifier cannot check %s attestations", att.Scheme)
		}
		signatures = append(signatures, att.Signature)
	}

	msg := p.Message
	return parsedVerifierABI.Pack(mintMethodName,
		string(msg.SourceChain),
		msg.SourceTxID,
		msg.Amount,
		common.HexToAddress(msg.Recipient),
		msg.Nonce,
		signatures,
	)
}

func (b *MintBuilder) BuildTx(ctx context.Context, p types.BridgeProof) ([]byte, error) {
	data, err := PackMint(p)
	if err != nil {
		return nil, err
	}

	nonce, err := b.gateway.pendingNonce(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("%w: pending nonce of %s: %s", types.ErrTransientIO, b.from.Hex(), err)
	}
	gasPrice, err := b.gateway.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %s", types.ErrTransientIO, err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      b.gasLimit,
		To:       &b.verifier,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, fmt.Errorf("error signing mint transaction: %w", err)
	}
	return signed.MarshalBinary()
}
