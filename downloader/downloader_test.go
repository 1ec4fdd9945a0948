package downloader

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/member"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

func h(b byte) chunk.Hash {
	var hh chunk.Hash
	hh[0] = b
	return hh
}

type memWriter struct {
	mu      sync.Mutex
	written map[string][]chunk.Hash
}

func newMemWriter() *memWriter { return &memWriter{written: make(map[string][]chunk.Hash)} }

func (w *memWriter) Write(rank int, fileName string, m *chunk.Manifest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]chunk.Hash, len(m.Hashes()))
	copy(cp, m.Hashes())
	w.written[fileName] = cp
	return nil
}

// firstSelector always returns the first peer, making the acquisition loop
// deterministic for a single-peer swarm (spec.md §9: "tests should mock
// selection").
func firstSelector(peers []registry.PeerEntry, rnd *rand.Rand) registry.PeerEntry {
	return peers[0]
}

// TestDownloaderAcquiresAllChunks drives a Downloader against hand-rolled
// tracker and peer stubs: a SWARM reply naming one peer with 12 chunks,
// REQUEST/ACK service for each, and a terminal FINISHED_DOWN_ALL.
func TestDownloaderAcquiresAllChunks(t *testing.T) {
	hub := transport.NewHub(3) // 0=tracker, 1=downloading client, 2=peer
	inv := chunk.NewInventory(nil, []string{"file1"})
	cl := member.New(hub.Endpoint(1), inv, []string{"file1"})
	writer := newMemWriter()
	dl := New(hub.Endpoint(1), cl, 0, writer, WithSelector(firstSelector))

	const chunkCount = 12
	var want []chunk.Hash
	for i := 0; i < chunkCount; i++ {
		want = append(want, h(byte(i+1)))
	}

	tracker := hub.Endpoint(0)
	peer := hub.Endpoint(2)

	var wg sync.WaitGroup
	wg.Add(2)

	// tracker stub: answer the initial SWARM query, then serve DOWN_10
	// progress reports and GIVE_PEERS refreshes until FINISHED_DOWN_ALL.
	go func() {
		defer wg.Done()
		var q wire.SwarmQuery
		if _, err := transport.RecvMsg(tracker, wire.Swarm, 1, &q); err != nil {
			t.Errorf("recv swarm query: %v", err)
			return
		}
		sendSwarmReply(t, tracker, 1, chunkCount, want)

		for {
			var inf wire.InformHeader
			sender, err := transport.RecvMsg(tracker, wire.Inform, transport.AnySource, &inf)
			if err != nil {
				t.Errorf("recv inform: %v", err)
				return
			}
			switch inf.Verb {
			case wire.InformDown10, wire.InformDownAll:
				for i := 0; i < inf.HashCount; i++ {
					if _, _, err := tracker.Recv(wire.Inform, sender); err != nil {
						t.Errorf("recv progress hash: %v", err)
						return
					}
				}
			case wire.InformGivePeers:
				sendSwarmReply(t, tracker, sender, chunkCount, want)
			case wire.InformFinishedDownAll:
				return
			default:
				t.Errorf("unexpected verb %q", inf.Verb)
				return
			}
		}
	}()

	// peer stub: ack every chunk request.
	go func() {
		defer wg.Done()
		for i := 0; i < chunkCount; i++ {
			var req wire.RequestMsg
			sender, err := transport.RecvMsg(peer, wire.Request, transport.AnySource, &req)
			if err != nil {
				t.Errorf("recv request: %v", err)
				return
			}
			if err := peer.Send(sender, wire.Ack, []byte(wire.AckOK)); err != nil {
				t.Errorf("send ack: %v", err)
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- dl.Run(context.Background()) }()

	waitAll := make(chan struct{})
	go func() { wg.Wait(); close(waitAll) }()

	select {
	case <-waitAll:
	case <-time.After(5 * time.Second):
		t.Fatal("stubs did not complete: likely deadlock")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Downloader.Run did not return")
	}

	got := writer.written["file1"]
	if len(got) != chunkCount {
		t.Fatalf("written chunks = %d, want %d", len(got), chunkCount)
	}
	for i, hh := range want {
		if got[i] != hh {
			t.Fatalf("chunk %d = %v, want %v", i, got[i], hh)
		}
	}
}

func sendSwarmReply(t *testing.T, tracker transport.Transport, to transport.Rank, chunkCount int, hashes []chunk.Hash) {
	t.Helper()
	if err := transport.SendMsg(tracker, to, wire.Swarm, wire.SwarmFileHeader{FileID: 1, PeerCount: 1}); err != nil {
		t.Errorf("send file header: %v", err)
		return
	}
	if err := transport.SendMsg(tracker, to, wire.Swarm, wire.SwarmPeerHeader{PeerRank: 2, ChunkCount: chunkCount}); err != nil {
		t.Errorf("send peer header: %v", err)
		return
	}
	for _, hh := range hashes {
		if err := tracker.Send(to, wire.HASH, wire.HashBytes(hh)); err != nil {
			t.Errorf("send hash: %v", err)
			return
		}
	}
}
