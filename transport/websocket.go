package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// The WebSocket adapter presents a set of WebSocket clients as a
// single net.PacketConn: every binary frame is one datagram, keyed by
// the remote address. It lets browser-based clients reach a server
// that otherwise speaks UDP, without the server knowing the
// difference.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  MaxDatagramSize,
	WriteBufferSize: MaxDatagramSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// A WSConn is the server-side WebSocket packet endpoint. It
// implements net.PacketConn and http.Handler; registering it on an
// http.ServeMux accepts client sockets.
type WSConn struct {
	addr net.Addr

	mu    sync.Mutex
	peers map[string]*websocket.Conn

	in chan Datagram

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWSConn builds a WebSocket packet endpoint identified by addr
// (used only for LocalAddr).
func NewWSConn(addr string) *WSConn {
	return &WSConn{
		addr:   LoopAddr(addr),
		peers:  make(map[string]*websocket.Conn),
		in:     make(chan Datagram, 256),
		closed: make(chan struct{}),
	}
}

// ServeHTTP upgrades a client and pumps its frames into ReadFrom.
func (c *WSConn) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	key := ws.RemoteAddr().String()

	c.mu.Lock()
	if old, ok := c.peers[key]; ok {
		old.Close()
	}
	c.peers[key] = ws
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.peers[key] == ws {
			delete(c.peers, key)
		}
		c.mu.Unlock()
		ws.Close()
	}()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		select {
		case c.in <- Datagram{Data: data, Addr: ws.RemoteAddr()}:
		case <-c.closed:
			return
		}
	}
}

func (c *WSConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-c.in:
		n := copy(p, pkt.Data)
		return n, pkt.Addr, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *WSConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	ws := c.peers[addr.String()]
	c.mu.Unlock()

	if ws == nil {
		return 0, fmt.Errorf("no websocket peer at %s", addr)
	}

	if err := ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		for _, ws := range c.peers {
			ws.Close()
		}
		c.peers = make(map[string]*websocket.Conn)
		c.mu.Unlock()
	})

	return nil
}

func (c *WSConn) LocalAddr() net.Addr { return c.addr }

func (c *WSConn) SetDeadline(t time.Time) error      { return nil }
func (c *WSConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *WSConn) SetWriteDeadline(t time.Time) error { return nil }

// DialWS connects to a WebSocket server endpoint and returns a
// single-peer packet conn plus the address to send to.
func DialWS(url string) (net.PacketConn, net.Addr, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("can't dial %s: %w", url, err)
	}

	c := &wsClientConn{
		ws:     ws,
		closed: make(chan struct{}),
	}

	return c, ws.RemoteAddr(), nil
}

type wsClientConn struct {
	ws *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsClientConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, nil, net.ErrClosed
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		return copy(p, data), c.ws.RemoteAddr(), nil
	}
}

func (c *wsClientConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *wsClientConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})

	return nil
}

func (c *wsClientConn) LocalAddr() net.Addr { return c.ws.LocalAddr() }

func (c *wsClientConn) SetDeadline(t time.Time) error      { return nil }
func (c *wsClientConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *wsClientConn) SetWriteDeadline(t time.Time) error { return nil }
