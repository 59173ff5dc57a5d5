/*
Package channel implements the delivery lanes of the VC01 protocol on
top of a datagram transport: retransmission and acknowledgment for the
reliable channels, in-order release and stale dropping for the ordered
ones, duplicate suppression, and a bounded send window.

A Conn is one side of one peer link. The server owns one Conn per
connected peer, all sharing a single net.PacketConn; a client owns a
single Conn.
*/
package channel

import (
	"net"
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/proto"
)

// A Conn multiplexes the four delivery channels over one peer link.
// All exported methods are safe for concurrent use; HandleDatagram
// must be called from a single goroutine.
type Conn struct {
	pc   net.PacketConn
	addr net.Addr

	codec   *proto.Codec
	cfg     vcnet.ChannelConfig
	metrics *vcnet.Metrics

	msgs chan *vcnet.Message
	errs chan error

	closeOnce sync.Once
	closed    chan struct{}

	// Outbound packet sequencing. Reliable and unreliable packets
	// use separate dense spaces so the contiguous acknowledgment
	// number stays meaningful.
	seqMu    sync.Mutex
	relSeq   uint32
	unrelSeq uint32

	// Outstanding unacknowledged reliable packets, bounded by the
	// send window.
	pendingMu sync.Mutex
	pending   map[uint32]*pendingPkt
	window    chan struct{}

	// Inbound reliable packet bookkeeping.
	ackMu    sync.Mutex
	inContig uint32
	inAhead  map[uint32]bool

	// Per-channel message sequencing (send side).
	msgSeqMu sync.Mutex
	msgSeq   [vcnet.ChannelCount]uint32

	// Per-channel receive state, owned by the HandleDatagram
	// goroutine.
	ordered   orderedState
	unordered dedupeWindow
	latest    uint32
	hasLatest bool

	relAsm   *proto.Assembler
	unrelAsm *proto.Assembler

	batchers [vcnet.ChannelCount]*batcher

	lastInMu sync.Mutex
	lastIn   time.Time
	pingMu   sync.Mutex
	ping     time.Duration
}

type pendingPkt struct {
	seq   uint32
	body  []byte
	flags proto.Flags
	acked chan struct{} // close-only
}

// orderedState releases reliable-ordered messages in sender sequence
// order with no gaps and no duplicates.
type orderedState struct {
	expected uint32
	held     map[uint32]*vcnet.Message
}

// NewConn builds a Conn speaking to addr over pc.
func NewConn(pc net.PacketConn, addr net.Addr, codec *proto.Codec,
	cfg vcnet.ChannelConfig, batch vcnet.CodecConfig, metrics *vcnet.Metrics) *Conn {

	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 64
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = vcnet.Duration(time.Second)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	c := &Conn{
		pc:      pc,
		addr:    addr,
		codec:   codec,
		cfg:     cfg,
		metrics: metrics,

		msgs:   make(chan *vcnet.Message, 256),
		errs:   make(chan error, 8),
		closed: make(chan struct{}),

		relSeq:   1,
		unrelSeq: 1,

		pending: make(map[uint32]*pendingPkt),
		window:  make(chan struct{}, cfg.WindowSize),

		inAhead: make(map[uint32]bool),

		ordered: orderedState{
			expected: 1,
			held:     make(map[uint32]*vcnet.Message),
		},
		unordered: newDedupeWindow(),

		relAsm:   proto.NewAssembler(proto.DefaultAssemblyExpiry, metrics),
		unrelAsm: proto.NewAssembler(proto.DefaultAssemblyExpiry, metrics),

		lastIn: time.Now(),
	}

	if batch.EnableBatching {
		timeout := batch.BatchTimeout.D()
		if timeout <= 0 {
			timeout = 10 * time.Millisecond
		}
		for ch := vcnet.ChannelID(0); ch < vcnet.ChannelCount; ch++ {
			c.batchers[ch] = newBatcher(c, ch, timeout)
		}
	}

	return c
}

// Addr returns the remote address of the Conn.
func (c *Conn) Addr() net.Addr { return c.addr }

// Closed returns a channel that is closed when the Conn is closed.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Recv receives the next decoded message. It returns net.ErrClosed
// after Close; keep calling it until then so no goroutine leaks.
func (c *Conn) Recv() (*vcnet.Message, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

// Close releases the Conn. Pending reliable sends are abandoned; the
// shared net.PacketConn is not closed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		for ch := vcnet.ChannelID(0); ch < vcnet.ChannelCount; ch++ {
			if c.batchers[ch] != nil {
				c.batchers[ch].stop()
			}
		}
	})

	return nil
}

// LastInbound returns when the last valid packet arrived from the
// peer.
func (c *Conn) LastInbound() time.Time {
	c.lastInMu.Lock()
	defer c.lastInMu.Unlock()

	return c.lastIn
}

func (c *Conn) touch() {
	c.lastInMu.Lock()
	c.lastIn = time.Now()
	c.lastInMu.Unlock()
}

// Ping returns the current round-trip estimate.
func (c *Conn) Ping() time.Duration {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()

	return c.ping
}

// RecordPing feeds a round-trip sample into the rolling estimate.
func (c *Conn) RecordPing(rtt time.Duration) {
	if rtt < 0 {
		return
	}

	c.pingMu.Lock()
	if c.ping == 0 {
		c.ping = rtt
	} else {
		// Rolling average, 7/8 old.
		c.ping = (c.ping*7 + rtt) / 8
	}
	c.pingMu.Unlock()
}

// Outstanding reports how many reliable packets await
// acknowledgment.
func (c *Conn) Outstanding() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	return len(c.pending)
}

// Expire frees timed-out fragment assembly entries. The session tick
// calls this periodically.
func (c *Conn) Expire(now time.Time) {
	c.relAsm.Expire(now)
	c.unrelAsm.Expire(now)
}

// currentAck returns the highest contiguous reliable packet sequence
// received from the peer, piggybacked in every outbound header.
func (c *Conn) currentAck() uint32 {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()

	return c.inContig
}

// A dedupeWindow suppresses duplicate sequence numbers with a
// contiguous floor plus an ahead-set, pruned as the floor advances.
type dedupeWindow struct {
	floor uint32
	ahead map[uint32]bool
}

func newDedupeWindow() dedupeWindow {
	return dedupeWindow{ahead: make(map[uint32]bool)}
}

// fresh records seq and reports whether it was seen for the first
// time.
func (d *dedupeWindow) fresh(seq uint32) bool {
	if seq == d.floor || !vcnet.SeqNewer(seq, d.floor) {
		return false
	}
	if d.ahead[seq] {
		return false
	}

	d.ahead[seq] = true
	for d.ahead[d.floor+1] {
		d.floor++
		delete(d.ahead, d.floor)
	}

	return true
}
