package client

import (
	"errors"
	"log"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/snapshot"
)

// handleStateSync ingests one snapshot, full or delta, and drives
// everything that hangs off the stream: the world, the interpolation
// buffer, reconciliation and the Loading to Playing transition.
func (c *Client) handleStateSync(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.StateSyncData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		c.metrics.ProtocolErrors.Add(1)
		return
	}

	if d.Seq <= c.buffer.LatestSeq() {
		c.metrics.SnapshotsStale.Add(1)
		return
	}

	encoded, err := c.resolveSnapshot(&d)
	if err != nil {
		if errors.Is(err, vcnet.ErrSnapshotBaseMissing) {
			// The delta chain is broken; ask for a resync.
			c.metrics.FullSnapshotReqs.Add(1)
			c.sendNow(vcnet.NewMessage(vcnet.MsgStateAck, mustMarshal(&vcnet.StateAckData{
				AppliedSeq:  c.buffer.LatestSeq(),
				RequestFull: true,
			})))
			return
		}
		log.Printf("client: snapshot %d: %v", d.Seq, err)
		return
	}

	s, err := snapshot.UnmarshalSnapshot(encoded)
	if err != nil {
		log.Printf("client: snapshot %d: %v", d.Seq, err)
		return
	}

	if err := c.buffer.Add(s); err != nil {
		c.metrics.SnapshotsStale.Add(1)
		return
	}
	c.bases.Put(d.Seq, encoded)
	c.metrics.SnapshotsApplied.Add(1)

	// Snapshots behind twice the render delay can never be sampled
	// again.
	c.buffer.EvictOlderThan(c.ServerNow() - 2*c.cfg.InterpolationDelay.D().Milliseconds())

	if c.world != nil {
		if err := c.world.ApplyDelta(s.World); err != nil {
			log.Printf("client: apply world: %v", err)
		}
	}

	c.sendNow(vcnet.NewMessage(vcnet.MsgStateAck, mustMarshal(&vcnet.StateAckData{
		AppliedSeq: d.Seq,
	})))

	if me, ok := s.Players[c.PeerID()]; ok && c.cfg.EnableServerReconciliation {
		if c.predictor.Reconcile(me) {
			c.events.Publish(vcnet.Event{Kind: vcnet.EventReconciliationApplied, Peer: c.PeerID()})
		}
	}

	// The first applied snapshot completes the join.
	if c.State() == vcnet.StateLoading {
		if me, ok := s.Players[c.PeerID()]; ok {
			c.predictor.Seed(me)
		}
		c.setState(vcnet.StatePlaying)
		c.events.Publish(vcnet.Event{Kind: vcnet.EventConnected, Peer: c.PeerID()})
		c.finishHandshake(nil)
	}
}

// resolveSnapshot turns the payload into a full snapshot encoding,
// reconstructing deltas against the retained base.
func (c *Client) resolveSnapshot(d *vcnet.StateSyncData) ([]byte, error) {
	if d.Full {
		return d.Data, nil
	}

	base, ok := c.bases.Get(snapshot.DeltaBase(d.Data))
	if !ok {
		return nil, vcnet.ErrSnapshotBaseMissing
	}

	out, _, err := snapshot.ApplyDelta(base, d.Data)
	return out, err
}

// OtherPlayers returns the interpolated render states of every other
// player at the given client time.
func (c *Client) OtherPlayers(nowMillis int64) []vcnet.PlayerState {
	return c.interp.Sample(nowMillis, c.PeerID())
}

// PredictedState returns the locally predicted state of our player.
func (c *Client) PredictedState() (vcnet.PlayerState, bool) {
	return c.predictor.State()
}
