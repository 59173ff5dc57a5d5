package server

import (
	"context"
	"log"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
)

func (srv *Server) registerHandlers() {
	srv.router.Handle(vcnet.MsgConnectionRequest, srv.withPeer(srv.handleConnectionRequest))
	srv.router.Handle(vcnet.MsgConnectionClose, srv.withPeer(srv.handleConnectionClose))
	srv.router.Handle(vcnet.MsgAuthRequest, srv.withPeer(srv.handleAuthRequest))
	srv.router.Handle(vcnet.MsgAuthResponse, srv.withPeer(srv.handleAuthResponse))
	srv.router.Handle(vcnet.MsgHeartbeat, srv.withPeer(srv.handleHeartbeat))
	srv.router.Handle(vcnet.MsgTimeSync, srv.withPeer(srv.handleTimeSync))
	srv.router.Handle(vcnet.MsgInputCommand, srv.withPeer(srv.handleInput))
	srv.router.Handle(vcnet.MsgStateAck, srv.withPeer(srv.handleStateAck))
	srv.router.Handle(vcnet.MsgChat, srv.withPeer(srv.handleChat))
	srv.router.Handle(vcnet.MsgCommand, srv.withPeer(srv.handleCommand))
	srv.router.Handle(vcnet.MsgStatusRequest, srv.withPeer(srv.handleStatusRequest))
	srv.router.HandleFallback(srv.handleUnknown)
}

// withPeer resolves the peer id to the live Peer before the handler
// runs. Messages from already-dropped peers are discarded.
func (srv *Server) withPeer(h func(*Peer, *vcnet.Message)) vcnet.Handler {
	return func(id vcnet.PeerID, msg *vcnet.Message) {
		p, ok := srv.peerByID(id)
		if !ok {
			return
		}
		h(p, msg)
	}
}

func (srv *Server) handleConnectionRequest(p *Peer, msg *vcnet.Message) {
	if p.State() != vcnet.StateConnecting {
		return
	}

	var req vcnet.ConnectionRequestData
	if err := req.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed connection request")
		return
	}

	if reason, detail := srv.admit(p, &req); reason != vcnet.RejectNone {
		srv.reject(p, reason, detail)
		return
	}

	mech := vcnet.AuthMechSRP
	known, err := srv.creds.HasUser(req.Username)
	if err != nil {
		srv.reject(p, vcnet.RejectAuthFailed, "credential store unavailable")
		return
	}
	if !known {
		if !srv.cfg.AllowRegistration {
			srv.reject(p, vcnet.RejectAuthFailed, "unknown user and registration is closed")
			return
		}
		mech = vcnet.AuthMechFirstSRP
	}

	p.mu.Lock()
	p.username = req.Username
	p.mu.Unlock()
	p.setState(vcnet.StateAuthenticating)

	accept := vcnet.NewMessage(vcnet.MsgConnectionAccept, mustMarshal(&vcnet.ConnectionAcceptData{
		PeerID:     p.ID,
		AuthMech:   mech,
		ServerTime: time.Now().UnixMilli(),
	}))
	p.Send(context.Background(), accept.To(p.ID))
}

// reject declines a connection attempt and drops the peer. The notice
// is sent unreliably; a peer that misses it will time out instead.
func (srv *Server) reject(p *Peer, reason vcnet.RejectReason, detail string) {
	msg := vcnet.NewMessage(vcnet.MsgConnectionReject, mustMarshal(&vcnet.ConnectionRejectData{
		Reason:  reason,
		Message: detail,
	}))
	p.Send(context.Background(), msg.To(p.ID))
	p.Flush()

	srv.events.Publish(vcnet.Event{Kind: vcnet.EventPeerRejected, Peer: p.ID, Reason: reason.String()})
	srv.dropPeer(p, "rejected: "+reason.String())
}

func (srv *Server) handleConnectionClose(p *Peer, msg *vcnet.Message) {
	var d vcnet.ConnectionCloseData
	d.UnmarshalBinary(msg.Payload)

	reason := d.Reason
	if reason == "" {
		reason = "client disconnected"
	}
	srv.dropPeer(p, reason)
}

func (srv *Server) handleHeartbeat(p *Peer, msg *vcnet.Message) {
	var d vcnet.HeartbeatData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}

	if d.EchoedAt != 0 {
		// Reply to our own probe: measure the round trip.
		rtt := time.Duration(time.Now().UnixMilli()-d.EchoedAt) * time.Millisecond
		p.RecordPing(rtt)
		srv.pushLatency(p)
		return
	}

	// Client probe: echo it back.
	echo := vcnet.NewMessage(vcnet.MsgHeartbeat, mustMarshal(&vcnet.HeartbeatData{
		SentAt:   time.Now().UnixMilli(),
		EchoedAt: d.SentAt,
	}))
	p.Send(context.Background(), echo.To(p.ID))
}

func (srv *Server) pushLatency(p *Peer) {
	msg := vcnet.NewMessage(vcnet.MsgLatencyUpdate, mustMarshal(&vcnet.LatencyUpdateData{
		PingMillis: uint32(p.Ping().Milliseconds()),
	}))
	p.Send(context.Background(), msg.To(p.ID))
}

func (srv *Server) handleTimeSync(p *Peer, msg *vcnet.Message) {
	var d vcnet.TimeSyncData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}

	d.ServerTime = time.Now().UnixMilli()
	reply := vcnet.NewMessage(vcnet.MsgTimeSync, mustMarshal(&d))
	p.Send(context.Background(), reply.To(p.ID))
}

// handleInput validates and applies one input command against the
// peer's authoritative state. The resulting AckInputSeq flows back to
// the client inside the next snapshot.
func (srv *Server) handleInput(p *Peer, msg *vcnet.Message) {
	if p.State() != vcnet.StatePlaying {
		return
	}

	var in vcnet.InputCommand
	if err := in.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed input command")
		return
	}

	if srv.cfg.EnableAntiCheat && !srv.vetInput(p, &in) {
		return
	}

	srv.mu.Lock()
	state, ok := srv.players[p.ID]
	if !ok {
		srv.mu.Unlock()
		return
	}
	// Old or duplicated inputs must not rewind the simulation.
	if !vcnet.SeqNewer(in.Seq, p.lastInputSeq) && p.lastInputSeq != 0 {
		srv.mu.Unlock()
		return
	}
	game.ApplyInput(&state, &in)
	srv.players[p.ID] = state
	p.lastInputSeq = in.Seq
	srv.mu.Unlock()
}

func (srv *Server) handleStateAck(p *Peer, msg *vcnet.Message) {
	var d vcnet.StateAckData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}

	p.recordStateAck(&d)

	// The first ack completes the join: the client has applied the
	// initial full state and may enter the world.
	if p.State() == vcnet.StateLoading {
		p.setState(vcnet.StatePlaying)
		srv.syncEntities(p)
		srv.Broadcast(vcnet.NewMessage(vcnet.MsgPlayerJoin, mustMarshal(&vcnet.PlayerJoinData{
			PeerID:   p.ID,
			Username: p.Username(),
		})), p.ID)
	}
}

func (srv *Server) handleStatusRequest(p *Peer, msg *vcnet.Message) {
	srv.mu.Lock()
	seq := srv.snapSeq
	srv.mu.Unlock()

	reply := vcnet.NewMessage(vcnet.MsgStatusResponse, mustMarshal(&vcnet.StatusResponseData{
		Players:       uint32(len(srv.ConnectedPlayers())),
		MaxPlayers:    uint32(srv.cfg.MaxPlayers),
		UptimeSeconds: uint64(srv.Uptime().Seconds()),
		SnapshotSeq:   seq,
	}))
	p.Send(context.Background(), reply.To(p.ID))
}

func (srv *Server) handleUnknown(id vcnet.PeerID, msg *vcnet.Message) {
	log.Printf("peer %d: unhandled %s message", id, msg.Type)
	if srv.cfg.KickUnknownPackets {
		srv.KickPlayer(id, "unsupported message type")
	}
}

// protocolViolation counts a malformed message and warns the peer.
// Repeat offenders are kicked.
func (srv *Server) protocolViolation(p *Peer, detail string) {
	srv.metrics.ProtocolErrors.Add(1)
	srv.events.Publish(vcnet.Event{Kind: vcnet.EventProtocolError, Peer: p.ID, Reason: detail})
	srv.warn(p, detail)
}

// warn sends a warning and kicks the peer once it exceeds the
// configured limit.
func (srv *Server) warn(p *Peer, detail string) {
	p.mu.Lock()
	p.warnings++
	n := p.warnings
	p.mu.Unlock()

	msg := vcnet.NewMessage(vcnet.MsgWarning, []byte(detail))
	p.Send(context.Background(), msg.To(p.ID))

	max := srv.cfg.MaxWarnings
	if max <= 0 {
		max = 3
	}
	if n >= max {
		srv.KickPlayer(p.ID, "too many protocol violations")
	}
}
