package transport

import (
	"sync"
	"testing"

	"github.com/holisticode/chunkfabric/wire"
)

func TestLocalSendRecvSpecificSource(t *testing.T) {
	hub := NewHub(3)
	defer hub.Close()

	a := hub.Endpoint(0)
	b := hub.Endpoint(1)

	if err := a.Send(1, wire.Ack, []byte(wire.AckOK)); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload, sender, err := b.Recv(wire.Ack, 0)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(payload) != wire.AckOK {
		t.Fatalf("payload = %q, want %q", payload, wire.AckOK)
	}
	if sender != 0 {
		t.Fatalf("sender = %d, want 0", sender)
	}
}

func TestLocalRecvAnyFIFOPerSender(t *testing.T) {
	hub := NewHub(3)
	defer hub.Close()

	tracker := hub.Endpoint(0)
	c1 := hub.Endpoint(1)
	c2 := hub.Endpoint(2)

	// Each sender's frames must arrive in the order sent, even though
	// the tracker uses a wildcard receive (spec §5: FIFO per
	// (sender,receiver,tag) is required, cross-sender order is not).
	for i := 0; i < 5; i++ {
		if err := c1.Send(0, wire.Inform, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		if err := c2.Send(0, wire.Inform, []byte{byte(100 + i)}); err != nil {
			t.Fatal(err)
		}
	}

	gotFrom1 := []byte{}
	gotFrom2 := []byte{}
	for i := 0; i < 10; i++ {
		payload, sender, err := tracker.Recv(wire.Inform, AnySource)
		if err != nil {
			t.Fatal(err)
		}
		switch sender {
		case 1:
			gotFrom1 = append(gotFrom1, payload[0])
		case 2:
			gotFrom2 = append(gotFrom2, payload[0])
		default:
			t.Fatalf("unexpected sender %d", sender)
		}
	}
	for i, v := range gotFrom1 {
		if v != byte(i) {
			t.Fatalf("from rank 1 out of order: %v", gotFrom1)
		}
	}
	for i, v := range gotFrom2 {
		if v != byte(100+i) {
			t.Fatalf("from rank 2 out of order: %v", gotFrom2)
		}
	}
}

func TestLocalConcurrentSenders(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	tracker := hub.Endpoint(0)

	var wg sync.WaitGroup
	for r := 1; r < 4; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := hub.Endpoint(Rank(r))
			if err := ep.Send(0, wire.Inform, []byte(wire.InformFinishedDownAll)); err != nil {
				t.Error(err)
			}
		}()
	}

	seen := map[Rank]bool{}
	for i := 0; i < 3; i++ {
		_, sender, err := tracker.Recv(wire.Inform, AnySource)
		if err != nil {
			t.Fatal(err)
		}
		seen[sender] = true
	}
	wg.Wait()
	if len(seen) != 3 {
		t.Fatalf("saw %d distinct senders, want 3: %v", len(seen), seen)
	}
}

func TestLocalCloseUnblocksRecv(t *testing.T) {
	hub := NewHub(2)
	ep := hub.Endpoint(1)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := ep.Recv(wire.Ack, AnySource)
		errCh <- err
	}()
	hub.Close()
	if err := <-errCh; err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
