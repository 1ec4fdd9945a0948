// Package uploader implements a client's serving side (spec.md §4.5): a
// single-threaded wildcard receive loop on the REQUEST tag that
// rubber-stamps every request with an ACK until the tracker broadcasts
// STOP_UPLOADING.
package uploader

import (
	"sync"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

// VerifyOwnership optionally checks that a requested hash is actually
// present in owned before acknowledging it. Spec.md §9 open question 6:
// disabled by default (the reference design never consults its manifest
// here); implementers wanting real-BitTorrent fidelity can supply one.
type VerifyOwnership func(owned *chunk.Inventory, h chunk.Hash) bool

// DefaultVerifyOwnership reports whether h is present in any of owned's
// files, a straightforward scan suitable for the small per-client
// manifests this protocol deals in (spec.md §3: MaxChunks per file).
func DefaultVerifyOwnership(owned *chunk.Inventory, h chunk.Hash) bool {
	for _, m := range owned.Owned() {
		if m.Has(h) {
			return true
		}
	}
	return false
}

// Uploader serves REQUEST-tag messages from any peer until stopped.
type Uploader struct {
	t   transport.Transport
	inv *chunk.Inventory
	log chunkfabriclog.Logger

	verify VerifyOwnership
	// mu guards nothing by itself; it exists so a supplied VerifyOwnership
	// hook has a documented lock to take if it needs to read owned
	// concurrently with the downloader's appends (spec.md §5: "append
	// operations are the only mutations" to owned).
	mu sync.Mutex
}

// Option configures an Uploader beyond its required constructor args.
type Option func(*Uploader)

// WithVerifyOwnership enables the optional ownership check (spec.md §9
// open question 6), off by default.
func WithVerifyOwnership(v VerifyOwnership) Option {
	return func(u *Uploader) { u.verify = v }
}

// New builds an Uploader serving requests over t, backed by inv.
func New(t transport.Transport, inv *chunk.Inventory, opts ...Option) *Uploader {
	u := &Uploader{
		t:   t,
		inv: inv,
		log: chunkfabriclog.NewRankLogger(int(t.Self()), "uploader"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run blocks, serving REQUEST messages from any source until one carries
// the STOP_UPLOADING control string (spec.md §4.5 steps 1-3), or until the
// transport closes.
func (u *Uploader) Run() error {
	for {
		var req wire.RequestMsg
		sender, err := transport.RecvMsg(u.t, wire.Request, transport.AnySource, &req)
		if err != nil {
			if err == transport.ErrClosed {
				return nil
			}
			return err
		}
		if req.IsControl() {
			if req.Control == wire.StopUploading {
				u.log.Debug("stop received, exiting")
				return nil
			}
			u.log.Warn("unknown control message, ignoring", "control", req.Control)
			continue
		}

		if u.verify != nil {
			u.mu.Lock()
			ok := u.verify(u.inv, req.Hash)
			u.mu.Unlock()
			if !ok {
				u.log.Warn("rejecting request for unowned hash", "peer", sender, "hash", req.Hash)
				continue
			}
		}

		if err := u.t.Send(sender, wire.Ack, []byte(wire.AckOK)); err != nil {
			return err
		}
	}
}
