package signer

import (
	"math/big"
	"testing"

	"gocsprbridge/types"

	"github.com/stretchr/testify/require"
)

const (
	testSecpKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testEdSeed  = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
)

func testMessage() types.CanonicalMessage {
	return types.CanonicalMessage{
		SourceChain: types.CHAIN_CASPER,
		SourceTxID:  "f1c6a6f1b07fa20a5e7a1d4b3a1d3a94b2d07d1e2c7a4a9e4a9b4b0c1d2e3f40",
		Amount:      big.NewInt(5_000_000_000),
		Recipient:   "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		Nonce:       42,
	}
}

func TestSignSecp256k1(t *testing.T) {
	s, err := New(testSecpKey, testEdSeed)
	require.NoError(t, err)

	msg := testMessage()
	att, err := s.Sign(msg, types.SCHEME_SECP256K1)
	require.NoError(t, err)
	require.Len(t, att.Signature, 65)
	require.Contains(t, []byte{27, 28}, att.Signature[64])
	require.Len(t, att.PublicKey, 33)
	require.NoError(t, Verify(msg, att))

	msg.Amount = big.NewInt(5_000_000_001)
	require.Error(t, Verify(msg, att))
}

func TestSignEd25519(t *testing.T) {
	s, err := New(testSecpKey, testEdSeed)
	require.NoError(t, err)

	msg := testMessage()
	att, err := s.Sign(msg, types.SCHEME_ED25519)
	require.NoError(t, err)
	require.Len(t, att.PublicKey, 32)
	require.Len(t, att.Signature, 64)
	require.NoError(t, Verify(msg, att))

	msg.Nonce++
	require.Error(t, Verify(msg, att))
}

func TestSchemeFor(t *testing.T) {
	scheme, err := SchemeFor(types.CHAIN_EVM)
	require.NoError(t, err)
	require.Equal(t, types.SCHEME_SECP256K1, scheme)

	scheme, err = SchemeFor(types.CHAIN_CASPER)
	require.NoError(t, err)
	require.Equal(t, types.SCHEME_ED25519, scheme)

	_, err = SchemeFor("solana")
	require.Error(t, err)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("zz", testEdSeed)
	require.Error(t, err)
	_, err = New(testSecpKey, "0011")
	require.Error(t, err)
}

func TestSignUnknownScheme(t *testing.T) {
	s, err := New(testSecpKey, testEdSeed)
	require.NoError(t, err)
	_, err = s.Sign(testMessage(), "bls")
	require.Error(t, err)
}
