package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

func h(b byte) chunk.Hash {
	var hh chunk.Hash
	hh[0] = b
	return hh
}

func sendInventory(t *testing.T, cl transport.Transport, tracker transport.Rank, kind chunk.Kind, files map[string][]chunk.Hash) {
	t.Helper()
	if err := transport.SendMsg(cl, tracker, wire.HASH, wire.InventoryHeader{OwnedCount: len(files)}); err != nil {
		t.Fatalf("send inventory header: %v", err)
	}
	if err := transport.SendMsg(cl, tracker, wire.ClientType, wire.ClientTypeMsg{Kind: int(kind)}); err != nil {
		t.Fatalf("send client type: %v", err)
	}
	for name, hashes := range files {
		if err := transport.SendMsg(cl, tracker, wire.HASH, wire.OwnedFileHeader{Name: name, Count: len(hashes)}); err != nil {
			t.Fatalf("send file header: %v", err)
		}
		for _, hh := range hashes {
			if err := cl.Send(tracker, wire.HASH, wire.HashBytes(hh)); err != nil {
				t.Fatalf("send hash: %v", err)
			}
		}
	}
}

func waitBarrier(t *testing.T, cl transport.Transport, tracker transport.Rank) {
	t.Helper()
	payload, _, err := cl.Recv(wire.Ack, tracker)
	if err != nil {
		t.Fatalf("recv barrier: %v", err)
	}
	if string(payload) != wire.AckOK {
		t.Fatalf("barrier payload = %q, want %q", payload, wire.AckOK)
	}
}

// TestControllerFullLifecycle drives a 3-rank swarm: rank 1 a seeder, rank
// 2 a peer wanting rank 1's file, through intake, the barrier, a SWARM
// query, a DOWN_10 progress report, a GIVE_PEERS refresh, and
// FINISHED_DOWN_ALL -> STOP_UPLOADING shutdown.
func TestControllerFullLifecycle(t *testing.T) {
	hub := transport.NewHub(3)
	reg := registry.New()
	ctrl := New(hub.Endpoint(0), reg)

	cl1 := hub.Endpoint(1)
	cl2 := hub.Endpoint(2)

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(context.Background()) }()

	seederHashes := []chunk.Hash{h(1), h(2), h(3)}
	sendInventory(t, cl1, 0, chunk.KindSeeder, map[string][]chunk.Hash{"file1": seederHashes})
	sendInventory(t, cl2, 0, chunk.KindPeer, map[string][]chunk.Hash{"file2": {h(9)}})

	waitBarrier(t, cl1, 0)
	waitBarrier(t, cl2, 0)

	if ctrl.Phase() != PhaseServing {
		t.Fatalf("Phase after barrier = %s, want SERVING", ctrl.Phase())
	}

	// rank 2 queries the swarm for file1.
	if err := transport.SendMsg(cl2, 0, wire.Swarm, wire.SwarmQuery{
		Kind:        int(chunk.KindPeer),
		WantedFiles: []int{1},
	}); err != nil {
		t.Fatalf("send swarm query: %v", err)
	}
	var fh wire.SwarmFileHeader
	if _, err := transport.RecvMsg(cl2, wire.Swarm, 0, &fh); err != nil {
		t.Fatalf("recv swarm file header: %v", err)
	}
	if fh.FileID != 1 || fh.PeerCount != 1 {
		t.Fatalf("swarm file header = %+v, want {1 1}", fh)
	}
	var ph wire.SwarmPeerHeader
	if _, err := transport.RecvMsg(cl2, wire.Swarm, 0, &ph); err != nil {
		t.Fatalf("recv swarm peer header: %v", err)
	}
	if ph.PeerRank != 1 || ph.ChunkCount != 3 {
		t.Fatalf("swarm peer header = %+v, want {1 3}", ph)
	}
	for i := 0; i < ph.ChunkCount; i++ {
		if _, _, err := cl2.Recv(wire.HASH, 0); err != nil {
			t.Fatalf("recv swarm hash %d: %v", i, err)
		}
	}

	// rank 2 reports a DOWN_10 for file2 (its own file, now with 10 new
	// chunks appended on top of the one it already owned).
	reported := make([]chunk.Hash, 10)
	for i := range reported {
		reported[i] = h(byte(20 + i))
	}
	if err := transport.SendMsg(cl2, 0, wire.Inform, wire.InformHeader{Verb: wire.InformDown10, FileID: 2, HashCount: len(reported)}); err != nil {
		t.Fatalf("send down10: %v", err)
	}
	for _, hh := range reported {
		if err := cl2.Send(0, wire.Inform, wire.HashBytes(hh)); err != nil {
			t.Fatalf("send progress hash: %v", err)
		}
	}

	// give the tracker a beat to fold the update in before asserting.
	time.Sleep(20 * time.Millisecond)
	peers := reg.Swarm(2, transport.AnySource)
	found := false
	for _, p := range peers {
		if p.Rank == 2 && p.Manifest.Len() == 11 {
			found = true
		}
	}
	if !found {
		t.Fatalf("swarm for file2 after progress report = %+v, want rank 2 with 11 chunks", peers)
	}

	// rank 2 asks for a refreshed peer list via GIVE_PEERS, using the file
	// list remembered from its earlier SWARM query (file1).
	if err := transport.SendMsg(cl2, 0, wire.Inform, wire.InformHeader{Verb: wire.InformGivePeers}); err != nil {
		t.Fatalf("send give_peers: %v", err)
	}
	var refreshHdr wire.SwarmFileHeader
	if _, err := transport.RecvMsg(cl2, wire.Swarm, 0, &refreshHdr); err != nil {
		t.Fatalf("recv refreshed swarm header: %v", err)
	}
	if refreshHdr.FileID != 1 {
		t.Fatalf("refreshed swarm header file = %d, want 1", refreshHdr.FileID)
	}
	var refreshPeer wire.SwarmPeerHeader
	if _, err := transport.RecvMsg(cl2, wire.Swarm, 0, &refreshPeer); err != nil {
		t.Fatalf("recv refreshed peer header: %v", err)
	}
	for i := 0; i < refreshPeer.ChunkCount; i++ {
		if _, _, err := cl2.Recv(wire.HASH, 0); err != nil {
			t.Fatalf("recv refreshed hash %d: %v", i, err)
		}
	}

	// rank 2 finishes; the tracker should shut down (only one non-seeder).
	if err := transport.SendMsg(cl2, 0, wire.Inform, wire.InformHeader{Verb: wire.InformFinishedDownAll}); err != nil {
		t.Fatalf("send finished: %v", err)
	}

	// rank 1 (SEEDER) must receive STOP_UPLOADING.
	var stop wire.RequestMsg
	if _, err := transport.RecvMsg(cl1, wire.Request, 0, &stop); err != nil {
		t.Fatalf("recv stop: %v", err)
	}
	if stop.Control != wire.StopUploading {
		t.Fatalf("stop control = %q, want %q", stop.Control, wire.StopUploading)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Controller.Run did not return after shutdown")
	}
	if ctrl.Phase() != PhaseStopped {
		t.Fatalf("final Phase = %s, want STOPPED", ctrl.Phase())
	}
}

// TestControllerUnknownInformVerbIsIgnored exercises spec §7's
// protocol-violation policy directly against the controller.
func TestControllerUnknownInformVerbIsIgnored(t *testing.T) {
	hub := transport.NewHub(2)
	reg := registry.New()
	ctrl := New(hub.Endpoint(0), reg)
	cl := hub.Endpoint(1)

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(context.Background()) }()

	sendInventory(t, cl, 0, chunk.KindLeecher, nil)
	waitBarrier(t, cl, 0)

	if err := transport.SendMsg(cl, 0, wire.Inform, wire.InformHeader{Verb: "BOGUS"}); err != nil {
		t.Fatalf("send bogus verb: %v", err)
	}
	if err := transport.SendMsg(cl, 0, wire.Inform, wire.InformHeader{Verb: wire.InformFinishedDownAll}); err != nil {
		t.Fatalf("send finished: %v", err)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Controller.Run did not return: unknown verb likely wedged serveInform")
	}
}
