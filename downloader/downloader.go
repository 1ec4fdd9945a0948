// Package downloader implements a client's chunk-acquisition loop (spec.md
// §4.4): for each wanted file, in fixed input order, repeatedly pick a
// peer and pull one new chunk hash from it, periodically reporting
// progress to the tracker and refreshing the peer table. Grounded on
// storage/netstore.go's RemoteFetch retry shape ("try, detect nothing-new,
// move on") and its singleflight-guarded Get, and on storage/
// hasherstore.go's span-wrapped fetch path.
package downloader

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/manifestio"
	"github.com/holisticode/chunkfabric/member"
	"github.com/holisticode/chunkfabric/metrics"
	"github.com/holisticode/chunkfabric/progress"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/timeouts"
	"github.com/holisticode/chunkfabric/tracing"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

// Selector picks one peer to try next out of a file's current swarm. The
// default is uniform random (spec.md §9: "the source seeds an
// unsynchronized PRNG... implementers may use any uniform sampler");
// tests inject a deterministic one (spec.md §9: "tests should mock
// selection").
type Selector func(peers []registry.PeerEntry, rnd *rand.Rand) registry.PeerEntry

// DefaultSelector chooses uniformly at random among peers.
func DefaultSelector(peers []registry.PeerEntry, rnd *rand.Rand) registry.PeerEntry {
	if len(peers) == 1 {
		return peers[0]
	}
	return peers[rnd.Intn(len(peers))]
}

// Downloader drives one client's download side. It owns no state beyond
// what Run needs locally; the durable inventory lives in chunk.Inventory,
// shared with the uploader.
type Downloader struct {
	t       transport.Transport
	client  *member.Client
	tracker transport.Rank
	writer  manifestio.Writer
	bars    *progress.Bars

	rnd  *rand.Rand
	pick func([]registry.PeerEntry, *rand.Rand) registry.PeerEntry
	sf   singleflight.Group
	log  chunkfabriclog.Logger
}

// Option configures a Downloader beyond its required constructor args.
type Option func(*Downloader)

// WithSelector overrides peer selection, e.g. for deterministic tests.
func WithSelector(pick func([]registry.PeerEntry, *rand.Rand) registry.PeerEntry) Option {
	return func(d *Downloader) { d.pick = pick }
}

// WithBars attaches an mpb progress-bar set for operator-facing rendering
// of the same counters the protocol already tracks.
func WithBars(b *progress.Bars) Option {
	return func(d *Downloader) { d.bars = b }
}

// New builds a Downloader for client, talking to tracker over t and
// writing completed files through writer.
func New(t transport.Transport, client *member.Client, tracker transport.Rank, writer manifestio.Writer, opts ...Option) *Downloader {
	d := &Downloader{
		t:       t,
		client:  client,
		tracker: tracker,
		writer:  writer,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pick:    DefaultSelector,
		log:     chunkfabriclog.NewRankLogger(int(t.Self()), "downloader"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the full acquisition loop: QuerySwarm, then spec.md §4.4
// steps 1-6 for every wanted file in order, then FINISHED_DOWN_ALL.
func (d *Downloader) Run(ctx context.Context) error {
	tables, err := d.client.QuerySwarm(d.tracker)
	if err != nil {
		return err
	}

	// downloaded is a single running total carried across file boundaries
	// (per original_source/src/tema2.c: the counter is declared outside
	// the per-file scope and only reset when a DOWN_10/DOWN_X report
	// fires), not reset when the loop advances to the next file.
	downloaded := 0

	for idx := 0; idx < len(tables.Files); idx++ {
		fileID := tables.Files[idx]
		name := d.wantedName(idx)
		peers := tables.Tables[fileID]
		if len(peers) == 0 {
			d.log.Info("no peers available, skipping file", "file", name)
			continue
		}

		owned := d.client.Inventory().Manifest(fileID, name)

		for {
			ctx, span := tracing.StartSpan(ctx, "downloader.acquire")
			peer := d.pick(peers, d.rnd)
			gotNew, err := d.acquireOne(peer, owned)
			span.Finish()
			if err != nil {
				return err
			}
			if !gotNew {
				break
			}
			downloaded++
			metrics.Inc(metrics.MetricChunksDownloaded, 1)
			if d.bars != nil {
				d.bars.Advance(name)
			}
			if downloaded%wire.Down10Batch == 0 {
				if err := d.reportAndRefresh(wire.InformDown10, fileID, owned, tables); err != nil {
					return err
				}
				downloaded = 0
				// reportAndRefresh merges a fresh GIVE_PEERS reply into
				// tables.Tables; peers must be re-read from it or
				// subsequent d.pick calls this file keep selecting from
				// the stale swarm snapshot (spec.md §9 open question 3).
				peers = tables.Tables[fileID]
			}
		}

		if downloaded > 0 {
			if err := d.report(wire.InformDownAll, fileID, owned); err != nil {
				return err
			}
			downloaded = 0
		}
		if err := d.writer.Write(int(d.t.Self()), name, owned); err != nil {
			return err
		}
	}

	return d.client.Finish(d.tracker)
}

// wantedName looks up the wanted file name at idx from the inventory the
// member.Client was built with; member.Client keeps this ordering.
func (d *Downloader) wantedName(idx int) string {
	wanted := d.client.Inventory().Wanted()
	if idx < len(wanted) {
		return wanted[idx]
	}
	return ""
}

// acquireOne implements spec.md §4.4 steps 3-4: scan peer's chunks from
// the client's current count onward, request the first one not already
// owned, and report whether a new chunk was obtained.
func (d *Downloader) acquireOne(peer registry.PeerEntry, owned *chunk.Manifest) (bool, error) {
	hashes := peer.Manifest.Hashes()
	for idx := owned.Len(); idx < len(hashes); idx++ {
		h := hashes[idx]
		if owned.Has(h) {
			continue
		}
		ok, err := d.requestChunk(peer.Rank, h)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if err := owned.Append(h); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// requestChunk sends one hash request to peer and waits for its ACK,
// de-duplicating concurrent requests for the same hash+peer the way
// storage/netstore.go's singleflight.Group collapses duplicate Gets.
func (d *Downloader) requestChunk(peer transport.Rank, h chunk.Hash) (bool, error) {
	key := fmt.Sprintf("%d:%s", peer, h)
	v, err, _ := d.sf.Do(key, func() (interface{}, error) {
		if timeouts.RequestTimeout > 0 {
			d.log.Trace("request with timeout budget", "peer", peer, "hash", h, "timeout", timeouts.RequestTimeout)
		}
		if err := transport.SendMsg(d.t, peer, wire.Request, wire.RequestMsg{Hash: h}); err != nil {
			return false, err
		}
		payload, _, err := d.t.Recv(wire.Ack, peer)
		if err != nil {
			return false, err
		}
		return string(payload) == wire.AckOK, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// report sends a DOWN_10/DOWN_X INFORM header followed by the last ten
// reported hashes (spec.md §4.4's termination edge: LastN clamps when
// fewer than ten chunks exist, so the header's HashCount must carry the
// actual frame count rather than let the reader assume Down10Batch).
func (d *Downloader) report(verb string, file chunk.FileID, owned *chunk.Manifest) error {
	hashes := owned.LastN(wire.Down10Batch)
	if err := transport.SendMsg(d.t, d.tracker, wire.Inform, wire.InformHeader{
		Verb:      verb,
		FileID:    int(file),
		HashCount: len(hashes),
	}); err != nil {
		return err
	}
	for _, h := range hashes {
		if err := d.t.Send(d.tracker, wire.Inform, wire.HashBytes(h)); err != nil {
			return err
		}
	}
	return nil
}

// reportAndRefresh sends a DOWN_10 report, then asks the tracker for a
// fresh swarm snapshot of every originally-wanted file and merges the
// result into tables (spec.md §9 open question 3, resolved: GIVE_PEERS is
// a real refresh the downloader now consumes instead of ignoring).
func (d *Downloader) reportAndRefresh(verb string, file chunk.FileID, owned *chunk.Manifest, tables *member.SwarmTables) error {
	if err := d.report(verb, file, owned); err != nil {
		return err
	}
	fresh, err := d.client.Refresh(d.tracker, tables.Files)
	if err != nil {
		return err
	}
	for id, peers := range fresh.Tables {
		tables.Tables[id] = peers
	}
	return nil
}
