package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/proto"
)

// Send enqueues msg on its channel. Reliable sends block while the
// send window is full until ctx is cancelled. When batching is
// enabled the message is accumulated and flushed on the batch
// timeout; window backpressure then applies at flush time.
func (c *Conn) Send(ctx context.Context, msg *vcnet.Message) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	if msg.Channel >= vcnet.ChannelCount {
		msg.Channel = msg.Type.Channel()
	}
	msg.Reliable = msg.Channel.Reliable()

	c.msgSeqMu.Lock()
	c.msgSeq[msg.Channel]++
	msg.Seq = c.msgSeq[msg.Channel]
	c.msgSeqMu.Unlock()

	if b := c.batchers[msg.Channel]; b != nil {
		b.add(msg)
		return nil
	}

	return c.sendNow(ctx, []*vcnet.Message{msg}, msg.Channel)
}

// Flush forces out any batched messages immediately.
func (c *Conn) Flush() {
	for ch := vcnet.ChannelID(0); ch < vcnet.ChannelCount; ch++ {
		if c.batchers[ch] != nil {
			c.batchers[ch].flush()
		}
	}
}

func (c *Conn) sendNow(ctx context.Context, msgs []*vcnet.Message, ch vcnet.ChannelID) error {
	out, err := c.codec.EncodeBody(msgs)
	if err != nil {
		return err
	}

	reliable := ch.Reliable()

	flags := out.Flags
	if reliable {
		flags |= proto.FlagReliable

		// One window slot per packet; fragments each take one. A send
		// that gives up mid-acquisition must hand back the slots it
		// already holds, or the window shrinks for good.
		for held := range out.Bodies {
			select {
			case c.window <- struct{}{}:
			case <-ctx.Done():
				for ; held > 0; held-- {
					<-c.window
				}
				return fmt.Errorf("%w: %w", vcnet.ErrSendWindowFull, ctx.Err())
			case <-c.closed:
				for ; held > 0; held-- {
					<-c.window
				}
				return net.ErrClosed
			}
		}
	}

	base := c.nextSeq(reliable, uint32(len(out.Bodies)))

	for i, body := range out.Bodies {
		seq := base + uint32(i)

		if reliable {
			p := &pendingPkt{
				seq:   seq,
				body:  body,
				flags: flags,
				acked: make(chan struct{}),
			}

			c.pendingMu.Lock()
			c.pending[seq] = p
			c.pendingMu.Unlock()

			go c.retransmit(p)
		}

		c.writePacket(proto.Header{
			Version: vcnet.ProtoVersion,
			Type:    proto.PktData,
			Seq:     seq,
			Ack:     c.currentAck(),
			Flags:   flags,
		}, body)
	}

	return nil
}

// nextSeq allocates n consecutive packet sequence numbers in the
// reliable or unreliable space.
func (c *Conn) nextSeq(reliable bool, n uint32) uint32 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if reliable {
		base := c.relSeq
		c.relSeq += n
		return base
	}

	base := c.unrelSeq
	c.unrelSeq += n
	return base
}

func (c *Conn) writePacket(h proto.Header, body []byte) {
	pkt := proto.EncodePacket(h, body)

	_, err := c.pc.WriteTo(pkt, c.addr)
	if errors.Is(err, net.ErrWriteToConnected) {
		if conn, ok := c.pc.(net.Conn); ok {
			_, err = conn.Write(pkt)
		}
	}
	if err != nil {
		select {
		case c.errs <- fmt.Errorf("can't send packet %d: %w", h.Seq, err):
		default:
		}
		return
	}

	if c.metrics != nil {
		c.metrics.PacketsSent.Add(1)
		c.metrics.BytesSent.Add(uint64(len(pkt)))
	}
}

// retransmit resends p until it is acknowledged, then gives up after
// maxRetries and surfaces the failure.
func (c *Conn) retransmit(p *pendingPkt) {
	ticker := time.NewTicker(c.cfg.RetryTimeout.D())
	defer ticker.Stop()

	for attempt := 0; ; {
		select {
		case <-p.acked:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			attempt++
			if attempt > c.cfg.MaxRetries {
				c.pendingMu.Lock()
				delete(c.pending, p.seq)
				c.pendingMu.Unlock()
				<-c.window

				select {
				case c.errs <- fmt.Errorf("packet %d: %w", p.seq, vcnet.ErrPeerUnresponsive):
				default:
				}
				return
			}

			if c.metrics != nil {
				c.metrics.Retransmits.Add(1)
			}

			// Re-frame so the piggybacked ack stays fresh.
			c.writePacket(proto.Header{
				Version: vcnet.ProtoVersion,
				Type:    proto.PktData,
				Seq:     p.seq,
				Ack:     c.currentAck(),
				Flags:   p.flags,
			}, p.body)
		}
	}
}

// sendAck emits a bare acknowledgment packet.
func (c *Conn) sendAck() {
	c.writePacket(proto.Header{
		Version: vcnet.ProtoVersion,
		Type:    proto.PktAck,
		Ack:     c.currentAck(),
	}, nil)
}

// handleAck releases every pending packet covered by the contiguous
// acknowledgment number.
func (c *Conn) handleAck(ack uint32) {
	if ack == 0 {
		return
	}

	c.pendingMu.Lock()
	var released []*pendingPkt
	for seq, p := range c.pending {
		if seq == ack || !vcnet.SeqNewer(seq, ack) {
			released = append(released, p)
			delete(c.pending, seq)
		}
	}
	c.pendingMu.Unlock()

	for _, p := range released {
		close(p.acked)
		<-c.window
	}
}
