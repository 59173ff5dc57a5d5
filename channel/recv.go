package channel

import (
	"errors"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/proto"
)

// HandleDatagram processes one raw datagram from the peer. Decode
// failures are recovered locally: the packet is dropped and a metric
// bumped, nothing propagates to the sender. Must be called from a
// single goroutine per Conn.
func (c *Conn) HandleDatagram(data []byte) {
	if c.metrics != nil {
		c.metrics.PacketsReceived.Add(1)
		c.metrics.BytesReceived.Add(uint64(len(data)))
	}

	h, body, err := proto.DecodePacket(data, c.codec.Strict())
	if err != nil {
		c.countDecodeError(err)
		return
	}

	c.touch()
	c.handleAck(h.Ack)

	if h.Type == proto.PktAck {
		return
	}

	reliable := h.Flags.Has(proto.FlagReliable)

	if reliable {
		if !c.freshReliable(h.Seq) {
			if c.metrics != nil {
				c.metrics.Duplicates.Add(1)
			}
			// Our ack may have been lost; repeat it.
			c.sendAck()
			return
		}
		c.sendAck()
	}

	if h.Flags.Has(proto.FlagFragmented) {
		asm := c.unrelAsm
		if reliable {
			asm = c.relAsm
		}

		complete, err := asm.Add(vcnet.PeerIDNil, h.Seq, body)
		if err != nil {
			c.countDecodeError(err)
			return
		}
		if complete == nil {
			return
		}

		body = complete
	}

	msgs, err := c.codec.DecodeBody(h.Flags, body)
	if err != nil {
		c.countDecodeError(err)
		return
	}

	// Batched messages enter the channels in batch order.
	for _, m := range msgs {
		c.receiveMessage(m)
	}
}

// freshReliable records a reliable packet sequence and reports
// whether it is new, advancing the contiguous acknowledgment number.
func (c *Conn) freshReliable(seq uint32) bool {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()

	if seq == c.inContig || !vcnet.SeqNewer(seq, c.inContig) {
		return false
	}
	if c.inAhead[seq] {
		return false
	}

	c.inAhead[seq] = true
	for c.inAhead[c.inContig+1] {
		c.inContig++
		delete(c.inAhead, c.inContig)
	}

	return true
}

// receiveMessage applies the channel's receive policy and releases
// deliverable messages to Recv.
func (c *Conn) receiveMessage(m *vcnet.Message) {
	switch m.Channel {
	case vcnet.ChannelReliableOrdered:
		// Strict FIFO: release in sender order, no gaps, no
		// duplicates.
		if m.Seq != c.ordered.expected {
			if vcnet.SeqNewer(m.Seq, c.ordered.expected) {
				c.ordered.held[m.Seq] = m
			} else if c.metrics != nil {
				c.metrics.Duplicates.Add(1)
			}
			return
		}

		c.deliver(m)
		c.ordered.expected++
		for {
			next, ok := c.ordered.held[c.ordered.expected]
			if !ok {
				break
			}
			delete(c.ordered.held, c.ordered.expected)
			c.deliver(next)
			c.ordered.expected++
		}
	case vcnet.ChannelReliableUnordered:
		if !c.unordered.fresh(m.Seq) {
			if c.metrics != nil {
				c.metrics.Duplicates.Add(1)
			}
			return
		}
		c.deliver(m)
	case vcnet.ChannelUnreliableOrdered:
		// Newer preempts older; stale messages are dropped.
		if c.hasLatest && !vcnet.SeqNewer(m.Seq, c.latest) {
			if c.metrics != nil {
				c.metrics.StaleDropped.Add(1)
			}
			return
		}
		c.latest = m.Seq
		c.hasLatest = true
		c.deliver(m)
	case vcnet.ChannelUnreliableUnordered:
		c.deliver(m)
	}
}

func (c *Conn) deliver(m *vcnet.Message) {
	select {
	case c.msgs <- m:
	case <-c.closed:
	}
}

func (c *Conn) countDecodeError(err error) {
	if c.metrics == nil {
		return
	}

	var perr *vcnet.ProtocolError
	if errors.As(err, &perr) {
		c.metrics.ProtocolErrors.Add(1)

		if isChecksumError(perr) {
			c.metrics.ChecksumFailures.Add(1)
		}
		return
	}

	c.metrics.ProtocolErrors.Add(1)
}

func isChecksumError(e *vcnet.ProtocolError) bool {
	return len(e.Reason) >= 8 && e.Reason[:8] == "checksum"
}
