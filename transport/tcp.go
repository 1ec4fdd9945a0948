package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/holisticode/chunkfabric/wire"
)

// frameHeaderSize is the on-wire header: 1 byte tag + 4 byte length.
const frameHeaderSize = 5

// dialRetryInterval is how long TCPTransport waits between connection
// attempts while the rest of the process group is still starting up.
// There is no upper bound on the number of retries: spec §5 assumes every
// message (and, by extension, every connection) is eventually delivered.
const dialRetryInterval = 100 * time.Millisecond

type tcpKey struct {
	from Rank
	tag  wire.Tag
}

// TCPTransport is a full-mesh TCP implementation of Transport: every pair
// of ranks holds one long-lived connection (the lower rank listens, the
// higher rank dials), and a single reader goroutine per connection
// demultiplexes incoming frames into one buffered channel per (peer, tag).
// This is the "thread-multiple" transport spec §5 requires for a client's
// downloader and uploader to share tags concurrently.
type TCPTransport struct {
	self  Rank
	world int

	connMu sync.Mutex
	conns  map[Rank]*tcpConn

	chanMu sync.Mutex
	chans  map[tcpKey]chan frame

	done chan struct{}
}

type tcpConn struct {
	conn  net.Conn
	wmu   sync.Mutex
	rbuf  *bufio.Reader
}

// Addresses maps every rank to the TCP address it listens on.
type Addresses []string

// DialMesh builds a TCPTransport for rank `self` out of a fixed address
// table, blocking until every other rank in the group has connected
// (lower ranks listen and accept, higher ranks dial), matching spec §1's
// "a fixed set of processes are launched together".
func DialMesh(self Rank, addrs Addresses) (*TCPTransport, error) {
	world := len(addrs)
	if int(self) >= world || self < 0 {
		return nil, fmt.Errorf("transport: rank %d out of range [0,%d)", self, world)
	}

	t := &TCPTransport{
		self:  self,
		world: world,
		conns: make(map[Rank]*tcpConn, world-1),
		chans: make(map[tcpKey]chan frame),
		done:  make(chan struct{}),
	}
	for from := 0; from < world; from++ {
		if Rank(from) == self {
			continue
		}
		for _, tag := range allTags {
			t.chans[tcpKey{Rank(from), tag}] = make(chan frame, localInboxSize)
		}
	}

	ln, err := net.Listen("tcp", addrs[self])
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addrs[self], err)
	}
	defer ln.Close()

	var wg sync.WaitGroup
	errCh := make(chan error, world-1)

	higher := world - int(self) - 1
	if higher > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < higher; i++ {
				c, err := ln.Accept()
				if err != nil {
					errCh <- err
					return
				}
				peer, err := readHandshake(c)
				if err != nil {
					errCh <- err
					return
				}
				t.register(peer, c)
			}
		}()
	}

	for r := Rank(0); r < self; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := dialWithRetry(addrs[r])
			if err != nil {
				errCh <- err
				return
			}
			if err := writeHandshake(c, self); err != nil {
				errCh <- err
				return
			}
			t.register(r, c)
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func dialWithRetry(addr string) (net.Conn, error) {
	for {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			return c, nil
		}
		select {
		case <-time.After(dialRetryInterval):
		}
	}
}

func writeHandshake(c net.Conn, self Rank) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(self))
	_, err := c.Write(b[:])
	return err
}

func readHandshake(c net.Conn) (Rank, error) {
	var b [4]byte
	if _, err := io.ReadFull(c, b[:]); err != nil {
		return 0, err
	}
	return Rank(binary.BigEndian.Uint32(b[:])), nil
}

func (t *TCPTransport) register(peer Rank, c net.Conn) {
	tc := &tcpConn{conn: c, rbuf: bufio.NewReader(c)}
	t.connMu.Lock()
	t.conns[peer] = tc
	t.connMu.Unlock()
	go t.readLoop(peer, tc)
}

func (t *TCPTransport) readLoop(peer Rank, tc *tcpConn) {
	for {
		var hdr [frameHeaderSize]byte
		if _, err := io.ReadFull(tc.rbuf, hdr[:]); err != nil {
			return
		}
		tag := wire.Tag(hdr[0])
		length := binary.BigEndian.Uint32(hdr[1:])
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(tc.rbuf, payload); err != nil {
				return
			}
		}
		t.chanMu.Lock()
		ch, ok := t.chans[tcpKey{peer, tag}]
		t.chanMu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- frame{payload: payload, sender: peer}:
		case <-t.done:
			return
		}
	}
}

func (t *TCPTransport) Self() Rank     { return t.self }
func (t *TCPTransport) WorldSize() int { return t.world }

func (t *TCPTransport) Send(to Rank, tag wire.Tag, payload []byte) error {
	t.connMu.Lock()
	tc, ok := t.conns[to]
	t.connMu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no connection to rank %d", to)
	}
	var hdr [frameHeaderSize]byte
	hdr[0] = byte(tag)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))

	tc.wmu.Lock()
	defer tc.wmu.Unlock()
	if _, err := tc.conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := tc.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCPTransport) Recv(tag wire.Tag, from Rank) ([]byte, Rank, error) {
	if from != AnySource {
		t.chanMu.Lock()
		ch := t.chans[tcpKey{from, tag}]
		t.chanMu.Unlock()
		select {
		case fr := <-ch:
			return fr.payload, fr.sender, nil
		case <-t.done:
			return nil, AnySource, ErrClosed
		}
	}
	return t.recvAny(tag)
}

func (t *TCPTransport) recvAny(tag wire.Tag) ([]byte, Rank, error) {
	senders := make([]Rank, 0, t.world-1)
	cases := make([]reflect.SelectCase, 0, t.world)
	t.chanMu.Lock()
	for from := 0; from < t.world; from++ {
		if Rank(from) == t.self {
			continue
		}
		ch := t.chans[tcpKey{Rank(from), tag}]
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		senders = append(senders, Rank(from))
	}
	t.chanMu.Unlock()
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.done)})

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == len(cases)-1 || !recvOK {
		return nil, AnySource, ErrClosed
	}
	fr := recv.Interface().(frame)
	return fr.payload, senders[chosen], nil
}

func (t *TCPTransport) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.connMu.Lock()
	defer t.connMu.Unlock()
	for _, tc := range t.conns {
		tc.conn.Close()
	}
	return nil
}
