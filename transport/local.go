package transport

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/holisticode/chunkfabric/wire"
)

var allTags = [...]wire.Tag{wire.HASH, wire.ClientType, wire.Ack, wire.Swarm, wire.Request, wire.Inform}

// localInboxSize bounds how many frames may be in flight, unread, on a
// single (sender, receiver, tag) channel before Send blocks. Generous
// enough that a whole SWARM reply or HASH inventory stream (bounded by
// chunk.MaxChunks) never backs up against it in tests.
const localInboxSize = 4096

type frame struct {
	payload []byte
	sender  Rank
}

type key struct {
	to, from Rank
	tag      wire.Tag
}

// Hub wires together every endpoint of an in-process simulated process
// group. It is the transport/local analogue of the teacher's
// simulation/examples/cluster harness: rather than launching N+1 real
// processes or containers, it runs the whole group as goroutines sharing
// one address space, which is adequate and far cheaper for tests and the
// spec §8 scenario suite.
type Hub struct {
	world int
	mu    sync.Mutex
	chans map[key]chan frame
	done  chan struct{}
}

// NewHub allocates a fully-connected channel mesh for `world` ranks.
func NewHub(world int) *Hub {
	h := &Hub{
		world: world,
		chans: make(map[key]chan frame),
		done:  make(chan struct{}),
	}
	for to := 0; to < world; to++ {
		for from := 0; from < world; from++ {
			if to == from {
				continue
			}
			for _, tag := range allTags {
				h.chans[key{Rank(to), Rank(from), tag}] = make(chan frame, localInboxSize)
			}
		}
	}
	return h
}

// Endpoint returns the Transport a process of the given rank should use.
func (h *Hub) Endpoint(rank Rank) Transport {
	if rank < 0 || int(rank) >= h.world {
		panic(fmt.Sprintf("transport: rank %d out of range [0,%d)", rank, h.world))
	}
	return &local{hub: h, self: rank}
}

// Close tears down the hub; any blocked Recv calls return ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

type local struct {
	hub  *Hub
	self Rank
}

func (l *local) Self() Rank     { return l.self }
func (l *local) WorldSize() int { return l.hub.world }

// Close tears down the whole hub, not just this endpoint: a real process
// group ends when any one process exits and drags its peers' connections
// down with it, which is what DialMesh's per-connection Close also does in
// transport/tcp.go.
func (l *local) Close() error {
	l.hub.Close()
	return nil
}

func (l *local) Send(to Rank, tag wire.Tag, payload []byte) error {
	ch, ok := l.hub.chans[key{to, l.self, tag}]
	if !ok {
		return fmt.Errorf("transport: no route from %d to %d", l.self, to)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case ch <- frame{payload: cp, sender: l.self}:
		return nil
	case <-l.hub.done:
		return ErrClosed
	}
}

func (l *local) Recv(tag wire.Tag, from Rank) ([]byte, Rank, error) {
	if from != AnySource {
		ch, ok := l.hub.chans[key{l.self, from, tag}]
		if !ok {
			return nil, AnySource, fmt.Errorf("transport: no route from %d to %d", from, l.self)
		}
		select {
		case fr := <-ch:
			return fr.payload, fr.sender, nil
		case <-l.hub.done:
			return nil, AnySource, ErrClosed
		}
	}
	return l.recvAny(tag)
}

// recvAny fans in every (sender, self, tag) channel using reflect.Select,
// since the world's membership is fixed at construction (spec §5: "the
// process set is fixed at startup") the case list never needs to grow or
// shrink across the life of the transport.
func (l *local) recvAny(tag wire.Tag) ([]byte, Rank, error) {
	senders := make([]Rank, 0, l.hub.world-1)
	cases := make([]reflect.SelectCase, 0, l.hub.world)
	for from := 0; from < l.hub.world; from++ {
		if Rank(from) == l.self {
			continue
		}
		ch := l.hub.chans[key{l.self, Rank(from), tag}]
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		senders = append(senders, Rank(from))
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(l.hub.done)})

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == len(cases)-1 {
		return nil, AnySource, ErrClosed
	}
	if !recvOK {
		return nil, AnySource, ErrClosed
	}
	fr := recv.Interface().(frame)
	return fr.payload, senders[chosen], nil
}
