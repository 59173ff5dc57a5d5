package transport

import (
	"net"
	"sync"
	"time"
)

// A LoopNetwork is an in-process packet network. It backs the listen
// server (an in-process client sharing the server's process) and the
// test suite, and can drop packets on demand.
type LoopNetwork struct {
	mu    sync.Mutex
	conns map[string]*LoopConn

	// DropFn, when set, is consulted for every delivery; returning
	// true discards the packet.
	dropFn func(from, to net.Addr, data []byte) bool
}

func NewLoopNetwork() *LoopNetwork {
	return &LoopNetwork{conns: make(map[string]*LoopConn)}
}

// SetDrop installs a packet drop hook.
func (n *LoopNetwork) SetDrop(fn func(from, to net.Addr, data []byte) bool) {
	n.mu.Lock()
	n.dropFn = fn
	n.mu.Unlock()
}

// Endpoint creates (or returns) the endpoint named name.
func (n *LoopNetwork) Endpoint(name string) *LoopConn {
	n.mu.Lock()
	defer n.mu.Unlock()

	if c, ok := n.conns[name]; ok {
		return c
	}

	c := &LoopConn{
		net:    n,
		addr:   LoopAddr(name),
		in:     make(chan Datagram, 256),
		closed: make(chan struct{}),
	}
	n.conns[name] = c

	return c
}

func (n *LoopNetwork) route(from net.Addr, to string, data []byte) {
	n.mu.Lock()
	dst := n.conns[to]
	drop := n.dropFn
	n.mu.Unlock()

	if dst == nil {
		return
	}
	if drop != nil && drop(from, dst.addr, data) {
		return
	}

	pkt := Datagram{Data: append([]byte(nil), data...), Addr: from}

	select {
	case dst.in <- pkt:
	case <-dst.closed:
	}
}

// A LoopAddr names a loopback endpoint.
type LoopAddr string

func (a LoopAddr) Network() string { return "loop" }
func (a LoopAddr) String() string  { return string(a) }

// A LoopConn is one endpoint of a LoopNetwork, implementing
// net.PacketConn.
type LoopConn struct {
	net  *LoopNetwork
	addr LoopAddr

	in chan Datagram

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *LoopConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-c.in:
		n := copy(p, pkt.Data)
		return n, pkt.Addr, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *LoopConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}

	c.net.route(c.addr, addr.String(), p)

	return len(p), nil
}

func (c *LoopConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.net.mu.Lock()
		delete(c.net.conns, string(c.addr))
		c.net.mu.Unlock()
	})

	return nil
}

func (c *LoopConn) LocalAddr() net.Addr { return c.addr }

// Deadlines are not used by the protocol loops; they are accepted and
// ignored.
func (c *LoopConn) SetDeadline(t time.Time) error      { return nil }
func (c *LoopConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *LoopConn) SetWriteDeadline(t time.Time) error { return nil }
