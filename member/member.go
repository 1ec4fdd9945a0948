// Package member implements a client's side of startup (spec §4.3): ship
// the inventory to the tracker, block on the global OK barrier, then (for
// any non-seeder) request the initial per-file swarm tables. It mirrors
// the teacher's api/config.go split between a default-filled struct and an
// Init step: here Announce ships the inventory, WaitBarrier blocks until
// the process group is ready to proceed.
package member

import (
	"fmt"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

// PeerTable is one wanted file's swarm as received from the tracker: the
// peers currently holding at least one chunk of it, and the manifest each
// advertised at query time.
type PeerTable = []registry.PeerEntry

// Client is one non-tracker process's membership handle: its inventory
// (which carries its derived kind) and its wanted file names. Peer tables
// are not stored here; QuerySwarm and Refresh return them.
type Client struct {
	t   transport.Transport
	log chunkfabriclog.Logger

	inv   *chunk.Inventory
	files []string // wanted file names, in input order
}

// New builds a Client around the given transport and inventory. files is
// the wanted-file list in the order the input manifest gave it (spec §4.4:
// "processes wanted files in fixed input order").
func New(t transport.Transport, inv *chunk.Inventory, files []string) *Client {
	return &Client{
		t:     t,
		log:   chunkfabriclog.NewRankLogger(int(t.Self()), "client"),
		inv:   inv,
		files: files,
	}
}

// Inventory returns the client's inventory handle, shared with the
// downloader and uploader.
func (c *Client) Inventory() *chunk.Inventory { return c.inv }

// Announce sends the startup inventory to the tracker: owned_count and
// kind, then each owned file's (name, chunk count, hashes), matching the
// tracker's expected receive order (spec §9 open question 1: HASH header,
// then CLIENT_TYPE, then HASH file records).
func (c *Client) Announce(tracker transport.Rank) error {
	owned := c.inv.Owned()
	if err := transport.SendMsg(c.t, tracker, wire.HASH, wire.InventoryHeader{OwnedCount: len(owned)}); err != nil {
		return fmt.Errorf("member: inventory header: %w", err)
	}
	if err := transport.SendMsg(c.t, tracker, wire.ClientType, wire.ClientTypeMsg{Kind: int(c.inv.Kind())}); err != nil {
		return fmt.Errorf("member: client type: %w", err)
	}
	for _, m := range owned {
		hashes := m.Hashes()
		if err := transport.SendMsg(c.t, tracker, wire.HASH, wire.OwnedFileHeader{Name: m.Name, Count: len(hashes)}); err != nil {
			return fmt.Errorf("member: file header %q: %w", m.Name, err)
		}
		for _, h := range hashes {
			if err := c.t.Send(tracker, wire.HASH, wire.HashBytes(h)); err != nil {
				return fmt.Errorf("member: file %q hash: %w", m.Name, err)
			}
		}
	}
	c.log.Debug("inventory announced", "kind", c.inv.Kind(), "files", len(owned))
	return nil
}

// WaitBarrier blocks on the tracker's global OK ACK (spec §4.3 step 2).
func (c *Client) WaitBarrier(tracker transport.Rank) error {
	payload, _, err := c.t.Recv(wire.Ack, tracker)
	if err != nil {
		return fmt.Errorf("member: barrier ack: %w", err)
	}
	if string(payload) != wire.AckOK {
		return fmt.Errorf("member: unexpected barrier payload %q", payload)
	}
	c.log.Debug("barrier cleared")
	return nil
}

// SwarmTables holds the per-file peer table built by QuerySwarm, keyed by
// the wanted file ids in the same order as the wanted file names.
type SwarmTables struct {
	Files  []chunk.FileID
	Tables map[chunk.FileID]PeerTable
}

// QuerySwarm performs the SWARM exchange (spec §4.3 step 3): send kind,
// wanted count and wanted file ids, then read each file's swarm reply in
// turn. Seeders never call this; the tracker never expects a query from
// one.
func (c *Client) QuerySwarm(tracker transport.Rank) (*SwarmTables, error) {
	ids := make([]chunk.FileID, len(c.files))
	want := make([]int, len(c.files))
	for i, name := range c.files {
		id := chunk.DeriveFileID(name)
		ids[i] = id
		want[i] = int(id)
	}
	if err := transport.SendMsg(c.t, tracker, wire.Swarm, wire.SwarmQuery{
		Kind:        int(c.inv.Kind()),
		WantedFiles: want,
	}); err != nil {
		return nil, fmt.Errorf("member: swarm query: %w", err)
	}
	return c.readSwarmReply(tracker, ids)
}

// Refresh sends a bare GIVE_PEERS on the INFORM tag (no kind and no file
// list go on the wire; the tracker answers for the files of this client's
// last SWARM query) and reads one swarm reply per id in files. Used by the
// downloader after a DOWN_10 report.
func (c *Client) Refresh(tracker transport.Rank, files []chunk.FileID) (*SwarmTables, error) {
	want := make([]int, len(files))
	for i, f := range files {
		want[i] = int(f)
	}
	if err := transport.SendMsg(c.t, tracker, wire.Inform, wire.InformHeader{Verb: wire.InformGivePeers}); err != nil {
		return nil, fmt.Errorf("member: give_peers: %w", err)
	}
	return c.readSwarmReply(tracker, files)
}

func (c *Client) readSwarmReply(tracker transport.Rank, ids []chunk.FileID) (*SwarmTables, error) {
	tables := make(map[chunk.FileID]PeerTable, len(ids))
	for _, f := range ids {
		var fh wire.SwarmFileHeader
		if _, err := transport.RecvMsg(c.t, wire.Swarm, tracker, &fh); err != nil {
			return nil, fmt.Errorf("member: swarm file header: %w", err)
		}
		entries := make(PeerTable, 0, fh.PeerCount)
		for i := 0; i < fh.PeerCount; i++ {
			var ph wire.SwarmPeerHeader
			if _, err := transport.RecvMsg(c.t, wire.Swarm, tracker, &ph); err != nil {
				return nil, fmt.Errorf("member: swarm peer header: %w", err)
			}
			m := chunk.NewManifest("")
			for j := 0; j < ph.ChunkCount; j++ {
				payload, _, err := c.t.Recv(wire.HASH, tracker)
				if err != nil {
					return nil, fmt.Errorf("member: swarm peer hash: %w", err)
				}
				var raw []byte
				if err := wire.Decode(payload, &raw); err != nil {
					return nil, err
				}
				h, err := chunk.ParseHash(raw)
				if err != nil {
					return nil, err
				}
				if err := m.Append(h); err != nil {
					return nil, err
				}
			}
			entries = append(entries, registry.PeerEntry{Rank: transport.Rank(ph.PeerRank), Manifest: m})
		}
		tables[chunk.FileID(fh.FileID)] = entries
	}
	return &SwarmTables{Files: ids, Tables: tables}, nil
}

// Finish sends FINISHED_DOWN_ALL (spec §4.4: "after all wanted files have
// been processed").
func (c *Client) Finish(tracker transport.Rank) error {
	return transport.SendMsg(c.t, tracker, wire.Inform, wire.InformHeader{Verb: wire.InformFinishedDownAll})
}
