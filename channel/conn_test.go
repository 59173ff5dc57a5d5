package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/proto"
	"github.com/voxelcraft/vcnet/transport"
)

// connPair wires two Conns across an in-process network and pumps
// their datagrams until the test ends.
func connPair(t *testing.T, cfg vcnet.ChannelConfig, codecCfg vcnet.CodecConfig) (*Conn, *Conn, *transport.LoopNetwork) {
	t.Helper()

	lnet := transport.NewLoopNetwork()
	apc := lnet.Endpoint("a")
	bpc := lnet.Endpoint("b")

	metrics := &vcnet.Metrics{}
	codec, err := proto.NewCodec(codecCfg, metrics)
	if err != nil {
		t.Fatal(err)
	}

	a := NewConn(apc, transport.LoopAddr("b"), codec, cfg, codecCfg, metrics)
	b := NewConn(bpc, transport.LoopAddr("a"), codec, cfg, codecCfg, &vcnet.Metrics{})

	pump := func(pc *transport.LoopConn, c *Conn) {
		buf := make([]byte, transport.MaxDatagramSize)
		for {
			n, _, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			c.HandleDatagram(append([]byte(nil), buf[:n]...))
		}
	}
	go pump(apc, a)
	go pump(bpc, b)

	t.Cleanup(func() {
		a.Close()
		b.Close()
		apc.Close()
		bpc.Close()
	})

	return a, b, lnet
}

func recvN(t *testing.T, c *Conn, n int, timeout time.Duration) []*vcnet.Message {
	t.Helper()

	var out []*vcnet.Message
	deadline := time.After(timeout)
	for len(out) < n {
		done := make(chan struct{})
		var msg *vcnet.Message
		var err error
		go func() {
			msg, err = c.Recv()
			close(done)
		}()

		select {
		case <-done:
			if err != nil {
				t.Fatalf("recv after %d messages: %v", len(out), err)
			}
			out = append(out, msg)
		case <-deadline:
			t.Fatalf("timed out with %d of %d messages", len(out), n)
		}
	}

	return out
}

func TestReliableOrderedDelivery(t *testing.T) {
	a, b, _ := connPair(t, vcnet.ChannelConfig{}, vcnet.CodecConfig{Serialization: "binary"})

	const n = 20
	for i := 0; i < n; i++ {
		msg := vcnet.NewMessage(vcnet.MsgChat, []byte(fmt.Sprintf("msg %d", i)))
		if err := a.Send(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}

	for i, msg := range recvN(t, b, n, 5*time.Second) {
		if want := fmt.Sprintf("msg %d", i); string(msg.Payload) != want {
			t.Fatalf("message %d = %q, want %q", i, msg.Payload, want)
		}
	}
}

func TestReliableOrderedSurvivesLoss(t *testing.T) {
	cfg := vcnet.ChannelConfig{RetryTimeout: vcnet.Duration(50 * time.Millisecond)}
	a, b, lnet := connPair(t, cfg, vcnet.CodecConfig{Serialization: "binary"})

	// Drop every third packet from a to b.
	var count atomic.Uint64
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool {
		return from.String() == "a" && count.Add(1)%3 == 0
	})

	const n = 15
	for i := 0; i < n; i++ {
		msg := vcnet.NewMessage(vcnet.MsgChat, []byte(fmt.Sprintf("msg %d", i)))
		if err := a.Send(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}

	for i, msg := range recvN(t, b, n, 10*time.Second) {
		if want := fmt.Sprintf("msg %d", i); string(msg.Payload) != want {
			t.Fatalf("message %d = %q, want %q", i, msg.Payload, want)
		}
	}
}

func TestUnreliableOrderedDropsStale(t *testing.T) {
	a, b, _ := connPair(t, vcnet.ChannelConfig{}, vcnet.CodecConfig{Serialization: "binary"})

	// Deliver an update, then replay an older one by hand.
	m1 := vcnet.NewMessage(vcnet.MsgPlayerUpdate, []byte("first"))
	if err := a.Send(context.Background(), m1); err != nil {
		t.Fatal(err)
	}
	recvN(t, b, 1, 5*time.Second)

	stale := vcnet.NewMessage(vcnet.MsgPlayerUpdate, []byte("stale"))
	stale.Seq = m1.Seq // same message seq: not newer
	b.receiveMessage(stale)

	fresh := vcnet.NewMessage(vcnet.MsgPlayerUpdate, []byte("fresh"))
	fresh.Seq = m1.Seq + 1
	b.receiveMessage(fresh)

	got := recvN(t, b, 1, 5*time.Second)
	if string(got[0].Payload) != "fresh" {
		t.Fatalf("got %q, want the fresh update", got[0].Payload)
	}
}

func TestRetransmitGivesUp(t *testing.T) {
	cfg := vcnet.ChannelConfig{
		RetryTimeout: vcnet.Duration(20 * time.Millisecond),
		MaxRetries:   3,
	}
	a, _, lnet := connPair(t, cfg, vcnet.CodecConfig{Serialization: "binary"})

	// Black hole: nothing from a ever arrives.
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool {
		return from.String() == "a"
	})

	msg := vcnet.NewMessage(vcnet.MsgChat, []byte("into the void"))
	if err := a.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	_, err := a.Recv()
	if !errors.Is(err, vcnet.ErrPeerUnresponsive) {
		t.Fatalf("err = %v, want ErrPeerUnresponsive", err)
	}
}

func TestSendWindowBlocks(t *testing.T) {
	cfg := vcnet.ChannelConfig{
		WindowSize:   2,
		RetryTimeout: vcnet.Duration(time.Hour),
		MaxRetries:   1000,
	}
	a, _, lnet := connPair(t, cfg, vcnet.CodecConfig{Serialization: "binary"})

	// No acks come back, so the window never drains.
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool {
		return from.String() == "b"
	})

	for i := 0; i < 2; i++ {
		if err := a.Send(context.Background(), vcnet.NewMessage(vcnet.MsgChat, []byte("x"))); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := a.Send(ctx, vcnet.NewMessage(vcnet.MsgChat, []byte("over the window")))
	if !errors.Is(err, vcnet.ErrSendWindowFull) {
		t.Fatalf("err = %v, want ErrSendWindowFull", err)
	}
}

func TestCancelledFragmentedSendReleasesWindow(t *testing.T) {
	cfg := vcnet.ChannelConfig{
		WindowSize:   2,
		RetryTimeout: vcnet.Duration(time.Hour),
		MaxRetries:   1000,
	}
	a, _, lnet := connPair(t, cfg, vcnet.CodecConfig{Serialization: "binary", MaxFragmentSize: 64})

	// Black hole in both directions; nothing is ever acknowledged.
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool { return true })

	// Fragments outnumber the window, so the send blocks partway
	// through slot acquisition and then times out.
	big := vcnet.NewMessage(vcnet.MsgChat, bytes.Repeat([]byte("x"), 400))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := a.Send(ctx, big); !errors.Is(err, vcnet.ErrSendWindowFull) {
		t.Fatalf("err = %v, want ErrSendWindowFull", err)
	}

	if n := a.Outstanding(); n != 0 {
		t.Fatalf("%d packets outstanding after a cancelled send", n)
	}

	// The slots the cancelled send held must be free again.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := a.Send(ctx2, vcnet.NewMessage(vcnet.MsgChat, []byte("after"))); err != nil {
		t.Fatalf("send after cancellation: %v", err)
	}
}

func TestUnreliableNotRetransmitted(t *testing.T) {
	a, b, lnet := connPair(t, vcnet.ChannelConfig{RetryTimeout: vcnet.Duration(20 * time.Millisecond)}, vcnet.CodecConfig{Serialization: "binary"})

	var dropped atomic.Bool
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool {
		// Drop exactly the first packet from a.
		if from.String() == "a" && dropped.CompareAndSwap(false, true) {
			return true
		}
		return false
	})

	lost := vcnet.NewMessage(vcnet.MsgHeartbeat, []byte("lost"))
	if err := a.Send(context.Background(), lost); err != nil {
		t.Fatal(err)
	}
	next := vcnet.NewMessage(vcnet.MsgHeartbeat, []byte("next"))
	if err := a.Send(context.Background(), next); err != nil {
		t.Fatal(err)
	}

	got := recvN(t, b, 1, 5*time.Second)
	if string(got[0].Payload) != "next" {
		t.Fatalf("got %q, want only the second heartbeat", got[0].Payload)
	}
	if a.Outstanding() != 0 {
		t.Fatalf("%d packets pending retransmit on an unreliable channel", a.Outstanding())
	}
}

func TestDuplicateReliablePacketCounted(t *testing.T) {
	a, b, lnet := connPair(t, vcnet.ChannelConfig{RetryTimeout: vcnet.Duration(30 * time.Millisecond)}, vcnet.CodecConfig{Serialization: "binary"})

	// Drop acks so a retransmits into b, which must dedupe.
	var acksDropped atomic.Uint64
	lnet.SetDrop(func(from, to net.Addr, data []byte) bool {
		if from.String() == "b" && acksDropped.Add(1) <= 2 {
			return true
		}
		return false
	})

	if err := a.Send(context.Background(), vcnet.NewMessage(vcnet.MsgChat, []byte("once"))); err != nil {
		t.Fatal(err)
	}

	got := recvN(t, b, 1, 5*time.Second)
	if string(got[0].Payload) != "once" {
		t.Fatalf("payload = %q", got[0].Payload)
	}

	// The retransmits must not surface as extra messages.
	time.Sleep(200 * time.Millisecond)
	select {
	case m := <-b.msgs:
		t.Fatalf("duplicate delivered: %q", m.Payload)
	default:
	}
}
