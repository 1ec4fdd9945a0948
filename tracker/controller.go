// Package tracker implements the rank-0 coordinator: intake of every
// client's startup inventory, the global OK barrier, runtime swarm queries
// and progress updates, and the final STOP_UPLOADING broadcast (spec §4.2,
// §4.6). It is the direct descendant of the teacher's api.Api +
// network/stream plumbing collapsed onto this protocol's six tags: where
// the teacher dispatches to a Registry of *Stream peers, the Controller
// dispatches to a registry.Registry of client ranks.
package tracker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/metrics"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

// Phase is the tracker's lifecycle state, spec §4.6.
type Phase int32

const (
	PhaseIntake Phase = iota
	PhaseServing
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "INTAKE"
	case PhaseServing:
		return "SERVING"
	case PhaseDraining:
		return "DRAINING"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Controller runs the tracker's side of the protocol over one Transport.
// It owns no state of its own beyond the phase cursor; everything else
// lives in the Registry, mirroring how the teacher's Api is a thin
// dispatcher in front of its NetStore/Registry.
type Controller struct {
	t   transport.Transport
	reg *registry.Registry
	log chunkfabriclog.Logger

	phase Phase
}

// New builds a Controller. The world size (N+1) comes from
// t.WorldSize(); the controller expects ranks 1..N to be clients.
func New(t transport.Transport, reg *registry.Registry) *Controller {
	return &Controller{
		t:   t,
		reg: reg,
		log: chunkfabriclog.NewRankLogger(int(t.Self()), "tracker"),
	}
}

// Phase returns the controller's current lifecycle phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Run drives the tracker end to end: intake, the OK barrier, then
// concurrent SWARM and INFORM serving until every non-seeder client has
// reported FINISHED_DOWN_ALL, followed by the STOP_UPLOADING broadcast.
// It returns once the tracker has nothing left to do (spec §4.6:
// DRAINING -> STOPPED).
func (c *Controller) Run(ctx context.Context) error {
	start := time.Now()
	if err := c.intake(); err != nil {
		return fmt.Errorf("tracker: intake: %w", err)
	}
	metrics.UpdateTimer(metrics.MetricIntakeDuration, start)

	if err := c.broadcastOK(); err != nil {
		return fmt.Errorf("tracker: barrier broadcast: %w", err)
	}
	c.phase = PhaseServing
	c.log.Info("serving", "nonSeeders", c.reg.NonSeederCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.serveInform(gctx)
		if err != nil {
			return err
		}
		return c.shutdown()
	})
	g.Go(func() error {
		err := c.serveSwarm(gctx)
		if err == transport.ErrClosed {
			return nil
		}
		return err
	})
	return g.Wait()
}

// intake absorbs every client's startup inventory in rank order (spec §9
// open question 1: HASH(owned_count) -> CLIENT_TYPE(kind) -> HASH(file
// records), read from each rank in turn). The tracker's intake is total
// order over ranks (spec §8 invariant 5), which is what guarantees intake
// terminates without deadlock: no rank's turn depends on another rank
// having already spoken out of order.
func (c *Controller) intake() error {
	world := c.t.WorldSize()
	for rank := transport.Rank(1); int(rank) < world; rank++ {
		var hdr wire.InventoryHeader
		if _, err := transport.RecvMsg(c.t, wire.HASH, rank, &hdr); err != nil {
			return fmt.Errorf("rank %d: inventory header: %w", rank, err)
		}

		var ct wire.ClientTypeMsg
		if _, err := transport.RecvMsg(c.t, wire.ClientType, rank, &ct); err != nil {
			return fmt.Errorf("rank %d: client type: %w", rank, err)
		}

		owned := make(map[chunk.FileID]*chunk.Manifest, hdr.OwnedCount)
		for i := 0; i < hdr.OwnedCount; i++ {
			var fh wire.OwnedFileHeader
			if _, err := transport.RecvMsg(c.t, wire.HASH, rank, &fh); err != nil {
				return fmt.Errorf("rank %d: file header %d: %w", rank, i, err)
			}
			m := chunk.NewManifest(fh.Name)
			for j := 0; j < fh.Count; j++ {
				h, err := recvHash(c.t, wire.HASH, rank)
				if err != nil {
					return fmt.Errorf("rank %d: file %q chunk %d: %w", rank, fh.Name, j, err)
				}
				if err := m.Append(h); err != nil {
					return err
				}
			}
			owned[chunk.DeriveFileID(fh.Name)] = m
		}

		kind := chunk.Kind(ct.Kind)
		c.reg.RegisterIntake(rank, kind, owned)
		c.log.Debug("intake complete", "rank", rank, "kind", kind, "files", hdr.OwnedCount)
	}
	return nil
}

// broadcastOK sends the global barrier ACK (spec §4.2) to every client, in
// rank order.
func (c *Controller) broadcastOK() error {
	world := c.t.WorldSize()
	for rank := transport.Rank(1); int(rank) < world; rank++ {
		if err := c.t.Send(rank, wire.Ack, []byte(wire.AckOK)); err != nil {
			return err
		}
	}
	return nil
}

// serveSwarm owns the SWARM tag for the controller's whole lifetime: a
// single goroutine is the sole consumer of this tag, so a wildcard-source
// receive here can never race with the per-sender replies it then sends
// (spec §4.2's swarm-query loop).
func (c *Controller) serveSwarm(ctx context.Context) error {
	for {
		var q wire.SwarmQuery
		sender, err := transport.RecvMsg(c.t, wire.Swarm, transport.AnySource, &q)
		if err != nil {
			return err
		}
		files := make([]chunk.FileID, len(q.WantedFiles))
		for i, f := range q.WantedFiles {
			files[i] = chunk.FileID(f)
		}
		c.reg.RememberWanted(sender, files)
		if err := c.replySwarm(sender, files); err != nil {
			return err
		}
	}
}

// replySwarm answers a SWARM exchange for the given files, per spec §4.1:
// for each file, a peer count, then per peer a (rank, chunk count) header
// followed by that many hashes on the HASH tag.
func (c *Controller) replySwarm(to transport.Rank, files []chunk.FileID) error {
	for _, f := range files {
		if f <= chunk.InvalidFileID || f > c.reg.MaxFileID() {
			c.log.Warn("swarm query: invalid file id, skipping", "rank", to, "file", f)
			continue
		}
		peers := c.reg.Swarm(f, to)
		if err := transport.SendMsg(c.t, to, wire.Swarm, wire.SwarmFileHeader{
			FileID:    int(f),
			PeerCount: len(peers),
		}); err != nil {
			return err
		}
		for _, p := range peers {
			hashes := p.Manifest.Hashes()
			if err := transport.SendMsg(c.t, to, wire.Swarm, wire.SwarmPeerHeader{
				PeerRank:   int(p.Rank),
				ChunkCount: len(hashes),
			}); err != nil {
				return err
			}
			for _, h := range hashes {
				if err := c.t.Send(to, wire.HASH, wire.HashBytes(h)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// serveInform owns the INFORM tag. It returns nil once every non-seeder
// client observed at startup has reported FINISHED_DOWN_ALL, at which
// point Run proceeds to shutdown.
func (c *Controller) serveInform(ctx context.Context) error {
	for {
		var hdr wire.InformHeader
		sender, err := transport.RecvMsg(c.t, wire.Inform, transport.AnySource, &hdr)
		if err != nil {
			return err
		}

		switch hdr.Verb {
		case wire.InformDown10, wire.InformDownAll:
			if err := c.applyProgress(sender, chunk.FileID(hdr.FileID), hdr.HashCount); err != nil {
				return err
			}
		case wire.InformGivePeers:
			// spec §9 open question 3: answered here with a real refresh
			// instead of the reference's silent no-op, using the file
			// list remembered from this rank's last SWARM query.
			files := c.reg.LastWanted(sender)
			if len(files) == 0 {
				c.log.Warn("GIVE_PEERS with no remembered wanted files, ignoring", "rank", sender)
				continue
			}
			if err := c.replySwarm(sender, files); err != nil {
				return err
			}
		case wire.InformFinishedDownAll:
			if first := c.reg.MarkFinished(sender); first {
				c.log.Info("client finished", "rank", sender, "finished", c.reg.FinishedCount(), "nonSeeders", c.reg.NonSeederCount())
			}
			if c.reg.IsDone() {
				return nil
			}
		default:
			c.log.Warn("unknown INFORM verb, ignoring", "rank", sender, "verb", hdr.Verb)
		}
	}
}

// applyProgress reads the trailing hash frames of a DOWN_10/DOWN_X report
// and folds them into the registry (spec §4.1: "the tracker treats the
// last ten segments of the named file as the new chunks"). hashCount is
// the sender's own InformHeader.HashCount: DOWN_10 always sends
// Down10Batch frames, but a DOWN_X end-of-file report sends fewer
// whenever the file has under Down10Batch chunks in total (spec.md §4.4's
// termination edge) - looping a hardcoded Down10Batch here would then
// consume the sender's *next* INFORM message (e.g. FINISHED_DOWN_ALL) as
// if it were a hash frame. The sender is blocked on this exchange until it
// completes, so reading these frames with a specific-source receive on
// the same INFORM tag the wildcard receive above also consumes cannot
// race: this goroutine is the only reader of the INFORM tag for the whole
// tracker lifetime.
func (c *Controller) applyProgress(sender transport.Rank, file chunk.FileID, hashCount int) error {
	hashes := make([]chunk.Hash, 0, hashCount)
	for i := 0; i < hashCount; i++ {
		h, err := recvHash(c.t, wire.Inform, sender)
		if err != nil {
			return fmt.Errorf("rank %d: progress report file %d chunk %d: %w", sender, file, i, err)
		}
		hashes = append(hashes, h)
	}
	name := fmt.Sprintf("file%d", file)
	if err := c.reg.ApplyUpdate(sender, file, name, hashes); err != nil {
		c.log.Warn("progress report rejected", "rank", sender, "file", file, "err", err)
	}
	return nil
}

// shutdown implements the DRAINING -> STOPPED transition (spec §4.2,
// §4.6): broadcast STOP_UPLOADING to every non-LEECHER rank, then close
// the transport, which unblocks serveSwarm's pending wildcard receive with
// transport.ErrClosed.
func (c *Controller) shutdown() error {
	c.phase = PhaseDraining
	c.log.Info("draining: broadcasting stop")

	for _, rank := range c.reg.Ranks() {
		if c.reg.Kind(rank) == chunk.KindLeecher {
			continue
		}
		if err := transport.SendMsg(c.t, rank, wire.Request, wire.RequestMsg{Control: wire.StopUploading}); err != nil {
			return fmt.Errorf("rank %d: stop broadcast: %w", rank, err)
		}
	}

	c.phase = PhaseStopped
	c.log.Info("stopped")
	return c.t.Close()
}

// recvHash receives one HashSize-octet hash from the given tag/source.
func recvHash(t transport.Transport, tag wire.Tag, from transport.Rank) (chunk.Hash, error) {
	payload, _, err := t.Recv(tag, from)
	if err != nil {
		return chunk.Hash{}, err
	}
	var raw []byte
	if err := wire.Decode(payload, &raw); err != nil {
		return chunk.Hash{}, err
	}
	return chunk.ParseHash(raw)
}
