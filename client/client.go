/*
Package client implements the connecting side of the protocol: the
handshake and SRP authentication, heartbeats and time sync, automatic
reconnection, client-side prediction with server reconciliation, and
entity interpolation over the snapshot stream.
*/
package client

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/channel"
	"github.com/voxelcraft/vcnet/game"
	"github.com/voxelcraft/vcnet/proto"
	"github.com/voxelcraft/vcnet/snapshot"
	"github.com/voxelcraft/vcnet/transport"
)

// Client is one connection to a server. It is not safe to call
// Connect concurrently with itself; everything else may be called
// from any goroutine once Connect returns.
type Client struct {
	cfg     vcnet.ClientConfig
	codec   *proto.Codec
	metrics *vcnet.Metrics
	events  *vcnet.EventBus
	router  *vcnet.Router

	world    game.World
	entities *game.MemoryEntities

	mu      sync.Mutex
	running bool
	pc      net.PacketConn
	conn    *channel.Conn
	state   vcnet.PeerState
	peerID  vcnet.PeerID
	userID  int64

	// Server clock offset in milliseconds, learned from time sync.
	clockOffset int64

	// SRP ephemerals, live only during one handshake.
	srpA []byte
	srpa []byte

	inputSeq  uint32
	predictor *Predictor
	interp    *Interpolator
	buffer    *snapshot.Buffer
	bases     *snapshot.History

	handshake chan error

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewClient builds a client around cfg. The world receives the
// snapshot stream's world bytes; pass a game.MemoryWorld when no
// engine is attached.
func NewClient(cfg vcnet.ClientConfig, world game.World) (*Client, error) {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cfg.ConnectionTimeout.D() <= 0 {
		cfg.ConnectionTimeout = vcnet.Duration(30 * time.Second)
	}
	if cfg.HeartbeatInterval.D() <= 0 {
		cfg.HeartbeatInterval = vcnet.Duration(10 * time.Second)
	}
	if cfg.InterpolationDelay.D() <= 0 {
		cfg.InterpolationDelay = vcnet.Duration(100 * time.Millisecond)
	}
	if cfg.ExtrapolationLimit.D() <= 0 {
		cfg.ExtrapolationLimit = vcnet.Duration(500 * time.Millisecond)
	}

	metrics := &vcnet.Metrics{}
	codec, err := proto.NewCodec(cfg.Codec, metrics)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		codec:     codec,
		metrics:   metrics,
		events:    vcnet.NewEventBus(),
		router:    vcnet.NewRouter(),
		world:     world,
		entities:  game.NewMemoryEntities(),
		state:     vcnet.StateDisconnected,
		predictor: NewPredictor(cfg.InputBufferSize, cfg.PredictionErrorThreshold, metrics),
		buffer:    snapshot.NewBuffer(snapshot.DefaultBufferCap),
		bases:     snapshot.NewHistory(snapshot.DefaultBufferCap),
	}
	c.interp = NewInterpolator(c.buffer, cfg.InterpolationDelay.D(), cfg.ExtrapolationLimit.D(), metrics, c.events)
	c.registerHandlers()

	return c, nil
}

func (c *Client) Metrics() *vcnet.Metrics { return c.metrics }
func (c *Client) Events() *vcnet.EventBus { return c.events }

func (c *Client) State() vcnet.PeerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Client) PeerID() vcnet.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.peerID
}

// Ping returns the smoothed round trip time to the server.
func (c *Client) Ping() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0
	}
	return c.conn.Ping()
}

func (c *Client) setState(s vcnet.PeerState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		log.Printf("client: %s -> %s", prev, s)
	}
}

// Connect dials the server and runs the full handshake. It returns
// once the client is Playing, or with the reason the server turned
// it away.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return vcnet.ErrAlreadyRunning
	}
	c.running = true
	c.quit = make(chan struct{})
	c.mu.Unlock()

	if err := c.connectOnce(); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	c.wg.Add(1)
	go c.heartbeatLoop()

	return nil
}

// connectOnce performs a single dial and handshake attempt.
func (c *Client) connectOnce() error {
	pc, raddr, err := transport.DialUDP(c.cfg.ServerAddress, c.cfg.ServerPort)
	if err != nil {
		return err
	}

	conn := channel.NewConn(pc, raddr, c.codec, c.cfg.Channel, c.cfg.Codec, c.metrics)

	c.mu.Lock()
	c.pc = pc
	c.conn = conn
	c.handshake = make(chan error, 1)
	c.mu.Unlock()

	c.setState(vcnet.StateConnecting)

	c.wg.Add(2)
	go c.readLoop(pc, conn)
	go c.msgLoop(conn)

	req := vcnet.NewMessage(vcnet.MsgConnectionRequest, mustMarshal(&vcnet.ConnectionRequestData{
		Version:  vcnet.ProtoVersion,
		Username: c.cfg.Username,
	}))
	if err := conn.Send(context.Background(), req); err != nil {
		c.teardownConn()
		return err
	}

	select {
	case err := <-c.handshake:
		if err != nil {
			c.teardownConn()
			return err
		}
		return nil
	case <-time.After(c.cfg.ConnectionTimeout.D()):
		c.teardownConn()
		return vcnet.ErrConnectionTimeout
	case <-c.quit:
		c.teardownConn()
		return vcnet.ErrNotRunning
	}
}

// Disconnect tells the server goodbye and shuts the client down.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return vcnet.ErrNotRunning
	}
	c.running = false
	conn := c.conn
	quit := c.quit
	c.mu.Unlock()

	if conn != nil && c.State().Ready() {
		bye := vcnet.NewMessage(vcnet.MsgConnectionClose, mustMarshal(&vcnet.ConnectionCloseData{
			Reason: "quit",
		}))
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		conn.Send(ctx, bye)
		conn.Flush()
		cancel()
	}

	close(quit)
	c.teardownConn()
	c.wg.Wait()

	c.setState(vcnet.StateDisconnected)
	c.events.Publish(vcnet.Event{Kind: vcnet.EventDisconnected, Peer: c.PeerID(), Reason: "quit"})

	return nil
}

func (c *Client) teardownConn() {
	c.mu.Lock()
	conn, pc := c.conn, c.pc
	c.conn, c.pc = nil, nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if pc != nil {
		pc.Close()
	}
}

func (c *Client) readLoop(pc net.PacketConn, conn *channel.Conn) {
	defer c.wg.Done()

	pkts := make(chan transport.Datagram, 64)
	errs := make(chan error, 1)
	go transport.ReadLoop(pc, pkts, errs)

	for {
		select {
		case pkt, ok := <-pkts:
			if !ok {
				return
			}
			conn.HandleDatagram(pkt.Data)
		case err := <-errs:
			log.Printf("client read: %v", err)
		case <-conn.Closed():
			return
		}
	}
}

func (c *Client) msgLoop(conn *channel.Conn) {
	defer c.wg.Done()

	for {
		msg, err := conn.Recv()
		if err != nil {
			c.onConnLost(err)
			return
		}
		c.router.Dispatch(c.PeerID(), msg)
	}
}

// onConnLost decides between reconnecting and giving up when the
// connection breaks underneath a running client.
func (c *Client) onConnLost(cause error) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if !running || c.State() == vcnet.StateDisconnected {
		return
	}

	log.Printf("client: connection lost: %v", cause)
	c.teardownConn()

	if !c.cfg.EnableAutoReconnect {
		c.setState(vcnet.StateDisconnected)
		c.events.Publish(vcnet.Event{Kind: vcnet.EventDisconnected, Peer: c.PeerID(), Reason: cause.Error()})
		return
	}

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries the full handshake with a fixed delay. The
// prediction history is reset on success: the server rebuilds our
// state from a fresh full snapshot, so old unacknowledged inputs no
// longer apply.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	max := c.cfg.MaxReconnectionAttempts
	if max <= 0 {
		max = 5
	}
	delay := c.cfg.ReconnectionDelay.D()
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for attempt := 1; attempt <= max; attempt++ {
		c.events.Publish(vcnet.Event{
			Kind:        vcnet.EventReconnecting,
			Peer:        c.PeerID(),
			Attempt:     attempt,
			MaxAttempts: max,
		})
		log.Printf("client: reconnecting (%d/%d)", attempt, max)

		select {
		case <-time.After(delay):
		case <-c.quit:
			return
		}

		c.predictor.Reset()
		c.buffer = snapshot.NewBuffer(snapshot.DefaultBufferCap)
		c.bases = snapshot.NewHistory(snapshot.DefaultBufferCap)
		c.interp.rebind(c.buffer)

		if err := c.connectOnce(); err != nil {
			log.Printf("client: reconnect attempt %d: %v", attempt, err)
			continue
		}

		return
	}

	c.setState(vcnet.StateDisconnected)
	c.events.Publish(vcnet.Event{
		Kind:   vcnet.EventDisconnected,
		Peer:   c.PeerID(),
		Reason: vcnet.ErrReconnectionExhausted.Error(),
	})

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// heartbeatLoop probes the server and keeps the clock offset fresh.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	t := time.NewTicker(c.cfg.HeartbeatInterval.D())
	sync := time.NewTicker(time.Minute)
	defer t.Stop()
	defer sync.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-t.C:
			c.sendNow(vcnet.NewMessage(vcnet.MsgHeartbeat, mustMarshal(&vcnet.HeartbeatData{
				SentAt: time.Now().UnixMilli(),
			})))
		case <-sync.C:
			c.sendNow(vcnet.NewMessage(vcnet.MsgTimeSync, mustMarshal(&vcnet.TimeSyncData{
				ClientSent: time.Now().UnixMilli(),
			})))
		}
	}
}

// sendNow delivers msg if a connection is up, dropping it otherwise.
func (c *Client) sendNow(msg *vcnet.Message) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Send(context.Background(), msg); err != nil {
		log.Printf("client send %s: %v", msg.Type, err)
	}
}

// ServerNow estimates the current server clock in unix milliseconds.
func (c *Client) ServerNow() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return time.Now().UnixMilli() + c.clockOffset
}

// SendChat sends a chat line (or /-command) to the server.
func (c *Client) SendChat(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.State().Ready() {
		return vcnet.ErrPeerNotReady
	}

	return conn.Send(context.Background(), vcnet.NewMessage(vcnet.MsgChat, mustMarshal(&vcnet.ChatData{
		Text: text,
	})))
}

func mustMarshal(v interface{ MarshalBinary() ([]byte, error) }) []byte {
	b, err := v.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}
