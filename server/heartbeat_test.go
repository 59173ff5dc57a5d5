package server

import (
	"testing"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/channel"
	"github.com/voxelcraft/vcnet/proto"
	"github.com/voxelcraft/vcnet/transport"
)

// heartbeatPeer is testPeer plus the loopback endpoint, so the test
// can observe what the server actually sent to the peer.
func heartbeatPeer(t *testing.T, srv *Server, name string, state vcnet.PeerState) (*Peer, *transport.LoopConn) {
	t.Helper()

	lnet := transport.NewLoopNetwork()
	pc := lnet.Endpoint(name)
	t.Cleanup(func() { pc.Close() })

	codec, err := proto.NewCodec(vcnet.CodecConfig{Serialization: "binary"}, srv.metrics)
	if err != nil {
		t.Fatal(err)
	}

	srv.mu.Lock()
	p := &Peer{
		Conn:     channel.NewConn(pc, transport.LoopAddr(name), codec, srv.cfg.Channel, srv.cfg.Codec, srv.metrics),
		ID:       srv.nextID,
		state:    state,
		username: name,
	}
	srv.nextID++
	srv.peers[name] = p
	srv.byID[p.ID] = p
	srv.mu.Unlock()
	t.Cleanup(func() { p.Close() })

	return p, pc
}

func readsDatagram(pc *transport.LoopConn, timeout time.Duration) bool {
	got := make(chan struct{})
	go func() {
		buf := make([]byte, transport.MaxDatagramSize)
		if _, _, err := pc.ReadFrom(buf); err == nil {
			close(got)
		}
	}()

	select {
	case <-got:
		return true
	case <-time.After(timeout):
		return false
	}
}

// readMessages decodes every message in the next datagram written to
// the peer's endpoint.
func readMessages(t *testing.T, pc *transport.LoopConn) []*vcnet.Message {
	t.Helper()

	buf := make([]byte, transport.MaxDatagramSize)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	h, body, err := proto.DecodePacket(buf[:n], false)
	if err != nil {
		t.Fatalf("decode packet: %v", err)
	}

	codec, err := proto.NewCodec(vcnet.CodecConfig{Serialization: "binary"}, &vcnet.Metrics{})
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := codec.DecodeBody(h.Flags, body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}

	return msgs
}

func TestHeartbeatAddressedPerPeer(t *testing.T) {
	srv := testServer(t, vcnet.ServerConfig{})

	p1, pc1 := heartbeatPeer(t, srv, "one", vcnet.StatePlaying)
	p2, pc2 := heartbeatPeer(t, srv, "two", vcnet.StatePlaying)

	srv.sendHeartbeats()

	for _, tt := range []struct {
		p  *Peer
		pc *transport.LoopConn
	}{{p1, pc1}, {p2, pc2}} {
		msgs := readMessages(t, tt.pc)
		if len(msgs) != 1 || msgs[0].Type != vcnet.MsgHeartbeat {
			t.Fatalf("peer %d: got %d messages, want one heartbeat", tt.p.ID, len(msgs))
		}
		if msgs[0].Receiver != tt.p.ID {
			t.Errorf("peer %d: heartbeat addressed to %d", tt.p.ID, msgs[0].Receiver)
		}
	}
}

func TestHeartbeatOnlyProbesSilentPeers(t *testing.T) {
	srv := testServer(t, vcnet.ServerConfig{})

	_, quietPC := heartbeatPeer(t, srv, "quiet", vcnet.StatePlaying)
	active, activePC := heartbeatPeer(t, srv, "active", vcnet.StatePlaying)

	// Fresh inbound traffic marks the active peer as alive.
	active.HandleDatagram(proto.EncodePacket(proto.Header{
		Version: vcnet.ProtoVersion,
		Type:    proto.PktAck,
	}, nil))

	srv.sendHeartbeats()

	if !readsDatagram(quietPC, 2*time.Second) {
		t.Fatal("silent peer was not probed")
	}
	if readsDatagram(activePC, 200*time.Millisecond) {
		t.Fatal("peer with recent traffic was probed")
	}
}
