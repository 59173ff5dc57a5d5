package server

import (
	"context"
	"log"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/snapshot"
)

// snapshotLoop captures the authoritative state at the configured
// interval and fans it out. Each peer gets either a delta against the
// newest snapshot it confirmed or a full snapshot when no usable base
// exists.
func (srv *Server) snapshotLoop() {
	defer srv.wg.Done()

	t := time.NewTicker(srv.cfg.SnapshotInterval.D())
	defer t.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-t.C:
			srv.publishSnapshot()
		}
	}
}

// captureSnapshot freezes the current state under the next sequence.
func (srv *Server) captureSnapshot() *snapshot.Snapshot {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.snapSeq++
	s := &snapshot.Snapshot{
		Seq:       srv.snapSeq,
		Timestamp: time.Now().UnixMilli(),
		World:     srv.world.Serialize(),
		Players:   make(map[vcnet.PeerID]vcnet.PlayerState, len(srv.players)),
	}
	for id, ps := range srv.players {
		s.Players[id] = ps
	}

	return s
}

func (srv *Server) publishSnapshot() {
	peers := srv.ConnectedPlayers()
	if len(peers) == 0 {
		return
	}

	s := srv.captureSnapshot()
	encoded, err := s.MarshalBinary()
	if err != nil {
		log.Printf("snapshot %d: %v", s.Seq, err)
		return
	}
	srv.history.Put(s.Seq, encoded)

	for _, p := range peers {
		srv.sendSnapshot(p, s.Seq, encoded)
	}
}

// sendSnapshot picks full or delta encoding per peer. Full snapshots
// go reliably so a joining client is guaranteed a base; deltas are
// unreliable ordered, a lost one is superseded by the next.
func (srv *Server) sendSnapshot(p *Peer, seq uint64, encoded []byte) {
	acked, wantFull := p.AckedSnapshot()

	var base []byte
	if !wantFull && acked != 0 {
		base, _ = srv.history.Get(acked)
	}

	var msg *vcnet.Message
	if base == nil {
		msg = vcnet.NewMessage(vcnet.MsgStateSync, mustMarshal(&vcnet.StateSyncData{
			Seq:  seq,
			Full: true,
			Data: encoded,
		}))
		msg.Channel = vcnet.ChannelReliableOrdered
		msg.Reliable = true
		p.clearWantFull()
	} else {
		msg = vcnet.NewMessage(vcnet.MsgStateSync, mustMarshal(&vcnet.StateSyncData{
			Seq:  seq,
			Data: snapshot.ComputeDelta(acked, base, encoded),
		}))
	}

	// A peer with a saturated reliable window must not stall the
	// loop for everyone else.
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.SnapshotInterval.D())
	defer cancel()
	if err := p.Send(ctx, msg.To(p.ID)); err != nil {
		log.Printf("snapshot %d to peer %d: %v", seq, p.ID, err)
		return
	}
	srv.metrics.SnapshotsSent.Add(1)
}
