// Package transport abstracts the point-to-point, tagged, FIFO, reliable
// process-group primitive spec.md §1 treats as given: "The message
// transport itself... The specification treats this as given." Two
// implementations are provided: transport/tcp for real multi-process runs
// and transport/local for tests and single-process simulation.
package transport

import (
	"errors"

	"github.com/holisticode/chunkfabric/wire"
)

// Rank is a process's fixed integer identity in the process group. Rank 0
// is always the tracker.
type Rank int

// AnySource is the wildcard value passed to Recv to accept a message from
// any sender, mirroring the transport's wildcard-source receive option
// (spec §1, §5).
const AnySource Rank = -1

// ErrClosed is returned by Send/Recv once the transport has been torn
// down (spec §3's "Tracker state is ... torn down after shutdown
// broadcast").
var ErrClosed = errors.New("transport: closed")

// Transport is the process-group primitive the tracker and every client
// are built on. Every Send and Recv may block indefinitely (spec §5:
// "There are no timeouts in the reference design").
type Transport interface {
	// Self is this process's own rank.
	Self() Rank

	// WorldSize is N+1, the fixed number of processes in the group.
	WorldSize() int

	// Send blocks until payload has been handed to the transport for
	// delivery to `to` on the given tag. FIFO per (sender, receiver, tag)
	// is guaranteed.
	Send(to Rank, tag wire.Tag, payload []byte) error

	// Recv blocks until a payload tagged `tag` arrives from `from`. If
	// from is AnySource, the first payload tagged `tag` from any sender
	// is returned, along with the sender's rank.
	Recv(tag wire.Tag, from Rank) (payload []byte, sender Rank, err error)

	// Close releases the transport's resources. Safe to call once the
	// process is done sending and receiving.
	Close() error
}

// SendMsg encodes v with wire.Encode and sends it, saving every call site
// the two-step encode-then-send boilerplate.
func SendMsg(t Transport, to Rank, tag wire.Tag, v interface{}) error {
	b, err := wire.Encode(v)
	if err != nil {
		return err
	}
	return t.Send(to, tag, b)
}

// RecvMsg receives a frame tagged `tag` from `from` and RLP-decodes it
// into v, which must be a pointer.
func RecvMsg(t Transport, tag wire.Tag, from Rank, v interface{}) (Rank, error) {
	b, sender, err := t.Recv(tag, from)
	if err != nil {
		return sender, err
	}
	return sender, wire.Decode(b, v)
}
