package signer

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gocsprbridge/proof"
	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one long-lived attestation key per scheme, read-only after construction
type Signer struct {
	secp *ecdsa.PrivateKey
	ed   ed25519.PrivateKey
}

// New parses a secp256k1 private key hex and a 32-byte ed25519 seed hex
func New(secpHex, edSeedHex string) (*Signer, error) {
	secp, err := crypto.HexToECDSA(strings.TrimPrefix(secpHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error instantiating secp256k1 key: %w", err)
	}
	ed, err := ParseEd25519Seed(edSeedHex)
	if err != nil {
		return nil, err
	}
	return &Signer{secp: secp, ed: ed}, nil
}

func ParseEd25519Seed(seedHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error decoding ed25519 seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SchemeFor maps a destination chain to the scheme its verifier checks
func SchemeFor(chain types.ChainID) (types.SchemeID, error) {
	switch chain {
	case types.CHAIN_EVM:
		return types.SCHEME_SECP256K1, nil
	case types.CHAIN_CASPER:
		return types.SCHEME_ED25519, nil
	}
	return "", fmt.Errorf("no signing scheme for chain %q", chain)
}

func (s *Signer) Sign(msg types.CanonicalMessage, scheme types.SchemeID) (types.Attestation, error) {
	switch scheme {
	case types.SCHEME_SECP256K1:
		sig, err := crypto.Sign(proof.Digest(msg), s.secp)
		if err != nil {
			return types.Attestation{}, fmt.Errorf("secp256k1 sign: %w", err)
		}
		// ecrecover expects 27/28
		sig[crypto.RecoveryIDOffset] += 27
		return types.Attestation{
			PublicKey: crypto.CompressPubkey(&s.secp.PublicKey),
			Signature: sig,
			Scheme:    scheme,
		}, nil
	case types.SCHEME_ED25519:
		return types.Attestation{
			PublicKey: []byte(s.ed.Public().(ed25519.PublicKey)),
			Signature: ed25519.Sign(s.ed, proof.Encode(msg)),
			Scheme:    scheme,
		}, nil
	}
	return types.Attestation{}, fmt.Errorf("unsupported signing scheme %q", scheme)
}

// Verify checks an attestation the way the destination verifier does
func Verify(msg types.CanonicalMessage, att types.Attestation) error {
	switch att.Scheme {
	case types.SCHEME_SECP256K1:
		if len(att.Signature) != crypto.SignatureLength {
			return fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
		}
		sig := bytes.Clone(att.Signature)
		sig[crypto.RecoveryIDOffset] -= 27
		pub, err := crypto.SigToPub(proof.Digest(msg), sig)
		if err != nil {
			return err
		}
		if !bytes.Equal(crypto.CompressPubkey(pub), att.PublicKey) {
			return errors.New("recovered key does not match attestation key")
		}
		return nil
	case types.SCHEME_ED25519:
		if len(att.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
		}
		if !ed25519.Verify(ed25519.PublicKey(att.PublicKey), proof.Encode(msg), att.Signature) {
			return errors.New("ed25519 signature does not verify")
		}
		return nil
	}
	return fmt.Errorf("unsupported signing scheme %q", att.Scheme)
}
