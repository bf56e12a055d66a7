package proof

import (
	"encoding/binary"
	"fmt"
	"strings"

	"gocsprbridge/types"

	"github.com/ethereum/go-ethereum/crypto"
)

// Nonce derives the replay-prevention value from the source transaction id:
// big-endian uint64 of the first 8 bytes of keccak256(sourceTxID).
func Nonce(sourceTxID string) uint64 {
	h := crypto.Keccak256([]byte(sourceTxID))
	return binary.BigEndian.Uint64(h[:8])
}

// Encode is the frozen wire format both verifiers check:
//
//	sourceChain "|" sourceTxId "|" decimal(amount) "|" decimal(nonce) || recipient
//
// The recipient is appended without a separator. Any change here breaks every
// signature on chain.
func Encode(msg types.CanonicalMessage) []byte {
	b := []byte(fmt.Sprintf("%s|%s|%s|%d", msg.SourceChain, msg.SourceTxID, msg.Amount.String(), msg.Nonce))
	return append(b, encodeRecipient(msg.Recipient)...)
}

const casperAccountPrefix = "account-hash-"

// Casper accounts are appended the way the vault formats its Address
// (Account(AccountHash(<hex>))), EVM addresses as they are.
func encodeRecipient(recipient string) string {
	if h, ok := strings.CutPrefix(recipient, casperAccountPrefix); ok {
		return "Account(AccountHash(" + strings.ToLower(h) + "))"
	}
	return recipient
}

// Digest is what secp256k1 attestations sign
func Digest(msg types.CanonicalMessage) []byte {
	return crypto.Keccak256(Encode(msg))
}
