package uploader

import (
	"testing"
	"time"

	"github.com/holisticode/chunkfabric/chunk"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/wire"
)

func h(b byte) chunk.Hash {
	var hh chunk.Hash
	hh[0] = b
	return hh
}

func TestUploaderAcksRequest(t *testing.T) {
	hub := transport.NewHub(2)
	inv := chunk.NewInventory(map[chunk.FileID]*chunk.Manifest{
		1: func() *chunk.Manifest {
			m := chunk.NewManifest("file1")
			m.Append(h(5))
			return m
		}(),
	}, nil)
	up := New(hub.Endpoint(1), inv)

	done := make(chan error, 1)
	go func() { done <- up.Run() }()

	peer := hub.Endpoint(0)
	if err := transport.SendMsg(peer, 1, wire.Request, wire.RequestMsg{Hash: h(5)}); err != nil {
		t.Fatalf("send request: %v", err)
	}
	payload, _, err := peer.Recv(wire.Ack, 1)
	if err != nil {
		t.Fatalf("recv ack: %v", err)
	}
	if string(payload) != wire.AckOK {
		t.Fatalf("ack payload = %q, want %q", payload, wire.AckOK)
	}

	if err := transport.SendMsg(peer, 1, wire.Request, wire.RequestMsg{Control: wire.StopUploading}); err != nil {
		t.Fatalf("send stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("uploader did not exit on STOP_UPLOADING")
	}
}

func TestUploaderRejectsUnownedHashWithVerify(t *testing.T) {
	hub := transport.NewHub(2)
	inv := chunk.NewInventory(map[chunk.FileID]*chunk.Manifest{
		1: chunk.NewManifest("file1"),
	}, nil)
	up := New(hub.Endpoint(1), inv, WithVerifyOwnership(DefaultVerifyOwnership))

	done := make(chan error, 1)
	go func() { done <- up.Run() }()

	peer := hub.Endpoint(0)
	if err := transport.SendMsg(peer, 1, wire.Request, wire.RequestMsg{Hash: h(9)}); err != nil {
		t.Fatalf("send request: %v", err)
	}
	// no ack should follow the unowned request; send STOP right after it,
	// wait for the uploader to exit, then check that no ACK was sent.
	if err := transport.SendMsg(peer, 1, wire.Request, wire.RequestMsg{Control: wire.StopUploading}); err != nil {
		t.Fatalf("send stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("uploader did not exit on STOP_UPLOADING")
	}
	// REQUEST-tag delivery is FIFO per sender (transport/local.go), so the
	// uploader processed the unowned-hash request strictly before STOP;
	// any ACK it sent for it is already queued on the peer's ACK channel.
	acked := make(chan struct{}, 1)
	go func() {
		if _, _, err := peer.Recv(wire.Ack, 1); err == nil {
			acked <- struct{}{}
		}
	}()
	select {
	case <-acked:
		t.Fatal("uploader acked a hash it does not own")
	case <-time.After(50 * time.Millisecond):
	}
	hub.Close()
}
