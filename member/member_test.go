package member

import (
	"testing"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

func h(b byte) chunk.Hash {
	var hh chunk.Hash
	hh[0] = b
	return hh
}

// TestClientAnnounceAndBarrier drives a Client against a hand-rolled
// tracker stub that only speaks the raw wire protocol, the way
// tracker/controller_test.go's counterpart drives a real Controller
// against a hand-rolled client stub.
func TestClientAnnounceAndBarrier(t *testing.T) {
	hub := transport.NewHub(2)
	inv := chunk.NewInventory(map[chunk.FileID]*chunk.Manifest{
		1: func() *chunk.Manifest {
			m := chunk.NewManifest("file1")
			m.Append(h(1))
			m.Append(h(2))
			return m
		}(),
	}, nil)
	cl := New(hub.Endpoint(1), inv, nil)

	done := make(chan error, 1)
	go func() { done <- cl.Announce(0) }()

	tracker := hub.Endpoint(0)
	var invHdr wire.InventoryHeader
	if _, err := transport.RecvMsg(tracker, wire.HASH, 1, &invHdr); err != nil {
		t.Fatalf("recv inventory header: %v", err)
	}
	if invHdr.OwnedCount != 1 {
		t.Fatalf("OwnedCount = %d, want 1", invHdr.OwnedCount)
	}
	var ct wire.ClientTypeMsg
	if _, err := transport.RecvMsg(tracker, wire.ClientType, 1, &ct); err != nil {
		t.Fatalf("recv client type: %v", err)
	}
	if chunk.Kind(ct.Kind) != chunk.KindSeeder {
		t.Fatalf("Kind = %d, want SEEDER", ct.Kind)
	}
	var fh wire.OwnedFileHeader
	if _, err := transport.RecvMsg(tracker, wire.HASH, 1, &fh); err != nil {
		t.Fatalf("recv file header: %v", err)
	}
	if fh.Name != "file1" || fh.Count != 2 {
		t.Fatalf("file header = %+v, want {file1 2}", fh)
	}
	for i := 0; i < fh.Count; i++ {
		if _, _, err := tracker.Recv(wire.HASH, 1); err != nil {
			t.Fatalf("recv hash %d: %v", i, err)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("Announce: %v", err)
	}

	go func() { done <- cl.WaitBarrier(0) }()
	if err := tracker.Send(1, wire.Ack, []byte(wire.AckOK)); err != nil {
		t.Fatalf("send ack: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WaitBarrier: %v", err)
	}
}

// TestClientQuerySwarmAndRefresh exercises the SWARM query/reply and the
// GIVE_PEERS refresh round trip (spec §9 open question 3).
func TestClientQuerySwarmAndRefresh(t *testing.T) {
	hub := transport.NewHub(2)
	inv := chunk.NewInventory(nil, []string{"file1"})
	cl := New(hub.Endpoint(1), inv, []string{"file1"})
	tracker := hub.Endpoint(0)

	replySwarm := func() {
		if err := transport.SendMsg(tracker, 1, wire.Swarm, wire.SwarmFileHeader{FileID: 1, PeerCount: 1}); err != nil {
			t.Fatalf("send file header: %v", err)
		}
		if err := transport.SendMsg(tracker, 1, wire.Swarm, wire.SwarmPeerHeader{PeerRank: 2, ChunkCount: 1}); err != nil {
			t.Fatalf("send peer header: %v", err)
		}
		if err := tracker.Send(1, wire.HASH, wire.HashBytes(h(7))); err != nil {
			t.Fatalf("send hash: %v", err)
		}
	}

	result := make(chan *SwarmTables, 1)
	errc := make(chan error, 1)
	go func() {
		tbl, err := cl.QuerySwarm(0)
		result <- tbl
		errc <- err
	}()
	var q wire.SwarmQuery
	if _, err := transport.RecvMsg(tracker, wire.Swarm, 1, &q); err != nil {
		t.Fatalf("recv swarm query: %v", err)
	}
	replySwarm()
	if err := <-errc; err != nil {
		t.Fatalf("QuerySwarm: %v", err)
	}
	tables := <-result
	peers := tables.Tables[chunk.FileID(1)]
	if len(peers) != 1 || peers[0].Rank != transport.Rank(2) {
		t.Fatalf("peers = %+v, want [{rank:2}]", peers)
	}

	// now drive a GIVE_PEERS refresh: the client sends INFORM/GIVE_PEERS
	// (no ack wait), and the tracker answers with a fresh SWARM reply.
	go func() {
		tbl, err := cl.Refresh(0, []chunk.FileID{1})
		result <- tbl
		errc <- err
	}()
	var inf wire.InformHeader
	if _, err := transport.RecvMsg(tracker, wire.Inform, 1, &inf); err != nil {
		t.Fatalf("recv give_peers: %v", err)
	}
	if inf.Verb != wire.InformGivePeers {
		t.Fatalf("Verb = %q, want GIVE_PEERS", inf.Verb)
	}
	replySwarm()
	if err := <-errc; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	refreshed := <-result
	if len(refreshed.Tables[chunk.FileID(1)]) != 1 {
		t.Fatalf("refreshed table empty")
	}
}

func TestClientFinish(t *testing.T) {
	hub := transport.NewHub(2)
	inv := chunk.NewInventory(nil, nil)
	cl := New(hub.Endpoint(1), inv, nil)
	tracker := hub.Endpoint(0)

	done := make(chan error, 1)
	go func() { done <- cl.Finish(0) }()

	var inf wire.InformHeader
	if _, err := transport.RecvMsg(tracker, wire.Inform, 1, &inf); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if inf.Verb != wire.InformFinishedDownAll {
		t.Fatalf("Verb = %q, want FINISHED_DOWN_ALL", inf.Verb)
	}
	if err := <-done; err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
