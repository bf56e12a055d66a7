package CSPRRPC

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// CLType tags of the Casper bytesrepr format
const (
	clTypeU8     byte = 3
	clTypeU64    byte = 5
	clTypeU512   byte = 8
	clTypeString byte = 10
	clTypeKey    byte = 11
	clTypeList   byte = 14
	clTypeTuple2 byte = 19
)

const (
	keyTagAccount byte = 0

	itemModuleBytes          byte = 0
	itemStoredContractByHash byte = 1
)

// serializer writes little endian bytesrepr values
type serializer struct {
	buf bytes.Buffer
}

func (s *serializer) u8(v byte) *serializer {
	s.buf.WriteByte(v)
	return s
}

func (s *serializer) u32(v uint32) *serializer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf.Write(b[:])
	return s
}

func (s *serializer) u64(v uint64) *serializer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf.Write(b[:])
	return s
}

func (s *serializer) raw(b []byte) *serializer {
	s.buf.Write(b)
	return s
}

// bytes is a length prefixed byte vector
func (s *serializer) bytes(b []byte) *serializer {
	return s.u32(uint32(len(b))).raw(b)
}

func (s *serializer) str(v string) *serializer {
	return s.bytes([]byte(v))
}

// u512 is one length byte followed by the little endian magnitude without trailing zeros
func (s *serializer) u512(v *big.Int) *serializer {
	be := v.Bytes()
	s.u8(byte(len(be)))
	for i := len(be) - 1; i >= 0; i-- {
		s.buf.WriteByte(be[i])
	}
	return s
}

func (s *serializer) Bytes() []byte {
	return s.buf.Bytes()
}

func encodeU512(v *big.Int) []byte {
	return new(serializer).u512(v).Bytes()
}

func encodeString(v string) []byte {
	return new(serializer).str(v).Bytes()
}

func encodeU64(v uint64) []byte {
	return new(serializer).u64(v).Bytes()
}

func encodeAccountKey(accountHash []byte) []byte {
	return new(serializer).u8(keyTagAccount).raw(accountHash).Bytes()
}

// keySignature is one (public_key, signature) entry of the release signatures
type keySignature struct {
	publicKey []byte
	signature []byte
}

// a Tuple2 value is its two elements back to back
func encodeKeySignatures(items []keySignature) []byte {
	s := new(serializer).u32(uint32(len(items)))
	for _, it := range items {
		s.bytes(it.publicKey).bytes(it.signature)
	}
	return s.Bytes()
}

var errShortBuffer = errors.New("bytesrepr: short buffer")

func decodeU512(b []byte) (*big.Int, error) {
	if len(b) == 0 {
		return nil, errShortBuffer
	}
	n := int(b[0])
	if n > 64 || len(b) != n+1 {
		return nil, fmt.Errorf("bytesrepr: bad U512 length %d", n)
	}
	be := make([]byte, n)
	for i := 0; i < n; i++ {
		be[n-1-i] = b[1+i]
	}
	return new(big.Int).SetBytes(be), nil
}

func decodeString(b []byte) (string, error) {
	if len(b) < 4 {
		return "", errShortBuffer
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(len(b)-4) != uint64(n) {
		return "", fmt.Errorf("bytesrepr: string length %d does not match %d bytes", n, len(b)-4)
	}
	return string(b[4:]), nil
}
