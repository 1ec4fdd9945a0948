package wire

import "github.com/holisticode/chunkfabric/chunk"

// ClientTypeMsg is the CLIENT_TYPE payload: one integer, the sender's Kind.
type ClientTypeMsg struct {
	Kind int
}

// OwnedFileHeader is one (name, chunk count) record inside the HASH
// inventory-upload stream, followed on the wire by Count hashes (spec
// §4.1's HASH stream description).
type OwnedFileHeader struct {
	Name  string
	Count int
}

// InventoryHeader opens a client's HASH inventory-upload stream: the
// number of owned files, M.
type InventoryHeader struct {
	OwnedCount int
}

// SwarmQuery is sent client->tracker to open a SWARM exchange: the
// client's kind, the number of wanted files, then the wanted file ids
// (carried here as a single message since RLP naturally encodes a slice;
// the reference wire format sends these as three framed values, which
// this module does not reproduce).
type SwarmQuery struct {
	Kind        int
	WantedFiles []int
}

// SwarmFileHeader announces, for one queried file, how many peers are in
// its swarm.
type SwarmFileHeader struct {
	FileID    int
	PeerCount int
}

// SwarmPeerHeader announces one peer within a swarm reply: its rank and
// how many chunk hashes follow on the HASH tag.
type SwarmPeerHeader struct {
	PeerRank   int
	ChunkCount int
}

// InformHeader is the verb + (for DOWN_10/DOWN_X) file id that precedes
// any trailing hash burst on the INFORM tag. HashCount is how many hash
// frames follow: DOWN_10 always sends Down10Batch, but DOWN_X (the
// end-of-file report) sends owned.Len() of them whenever the file has
// fewer than Down10Batch chunks in total, per spec.md §4.4's
// termination edge - the reader needs this count rather than assuming
// a fixed Down10Batch every time.
type InformHeader struct {
	Verb      string
	FileID    int
	HashCount int
}

// RequestMsg carries either a requested chunk hash or the STOP_UPLOADING
// control string on the REQUEST tag.
type RequestMsg struct {
	Control string    // non-empty only for STOP_UPLOADING
	Hash    chunk.Hash
}

// IsControl reports whether this REQUEST frame is a control message rather
// than a chunk-hash request.
func (r RequestMsg) IsControl() bool {
	return r.Control != ""
}
