package wire

import (
	"bytes"

	"github.com/ethereum/go-ethereum/rlp"
)

// Encode RLP-encodes v, the same codec network/enr.go uses for its own
// wire structures (EncodeRLP/DecodeRLP), here applied generically to every
// wire.*Msg/*Header struct instead of one bespoke type.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode RLP-decodes payload into v, which must be a pointer.
func Decode(payload []byte, v interface{}) error {
	return rlp.DecodeBytes(payload, v)
}

// HashBytes RLP-encodes a raw chunk hash the same way Encode would encode
// any other payload; it exists as a named helper because hash frames are
// sent far more often than any other message shape (one per chunk, per
// spec §4.1's trailing hash bursts).
func HashBytes(h [32]byte) []byte {
	b, _ := Encode(h[:])
	return b
}
