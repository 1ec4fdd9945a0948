package wire

import (
	"testing"

	"github.com/holisticode/chunkfabric/chunk"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := SwarmQuery{Kind: 2, WantedFiles: []int{1, 2, 3}}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out SwarmQuery
	if err := Decode(b, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Kind != in.Kind || len(out.WantedFiles) != len(in.WantedFiles) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestHashBytesRoundTrip(t *testing.T) {
	var h chunk.Hash
	for i := range h {
		h[i] = byte(i)
	}
	encoded := HashBytes(h)
	var raw []byte
	if err := Decode(encoded, &raw); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := chunk.ParseHash(raw)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if got != h {
		t.Fatalf("got %v, want %v", got, h)
	}
}
