package client

import (
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/snapshot"
)

// An Interpolator renders remote players slightly in the past,
// between two buffered snapshots. When the stream stalls it
// extrapolates along the last known velocities up to a limit, then
// freezes and raises a sync warning.
type Interpolator struct {
	mu      sync.Mutex
	buf     *snapshot.Buffer
	delay   time.Duration
	limit   time.Duration
	metrics *vcnet.Metrics
	events  *vcnet.EventBus

	// warned latches so a long stall raises one warning, not one
	// per frame.
	warned bool
}

func NewInterpolator(buf *snapshot.Buffer, delay, limit time.Duration, metrics *vcnet.Metrics, events *vcnet.EventBus) *Interpolator {
	return &Interpolator{
		buf:     buf,
		delay:   delay,
		limit:   limit,
		metrics: metrics,
		events:  events,
	}
}

// rebind points the interpolator at a fresh buffer after a reconnect.
func (ip *Interpolator) rebind(buf *snapshot.Buffer) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	ip.buf = buf
	ip.warned = false
}

// Sample returns every player except self at render time, which is
// nowMillis pushed back by the interpolation delay.
func (ip *Interpolator) Sample(nowMillis int64, self vcnet.PeerID) []vcnet.PlayerState {
	ip.mu.Lock()
	buf := ip.buf
	ip.mu.Unlock()

	renderAt := nowMillis - ip.delay.Milliseconds()

	before, after, ok := buf.Straddle(renderAt)
	if !ok {
		return nil
	}

	if before == after {
		return ip.sampleEdge(before, renderAt, self)
	}

	ip.setWarned(false)

	span := after.Timestamp - before.Timestamp
	var t float32
	if span > 0 {
		t = float32(renderAt-before.Timestamp) / float32(span)
	}

	out := make([]vcnet.PlayerState, 0, len(after.Players))
	for id, b := range after.Players {
		if id == self {
			continue
		}

		a, ok := before.Players[id]
		if !ok {
			// Joined between the two snapshots; no pair to blend.
			out = append(out, b)
			continue
		}

		s := b
		s.Pos = a.Pos.Lerp(b.Pos, t)
		s.Rot = a.Rot.Slerp(b.Rot, t)
		s.Vel = a.Vel.Lerp(b.Vel, t)
		out = append(out, s)
	}

	return out
}

// sampleEdge handles render times outside the buffered range. Ahead
// of the newest snapshot it extrapolates along the velocities; past
// the limit the stream counts as stalled and entities hold at the
// snapshot itself.
func (ip *Interpolator) sampleEdge(s *snapshot.Snapshot, renderAt int64, self vcnet.PeerID) []vcnet.PlayerState {
	ahead := renderAt - s.Timestamp

	if ahead > ip.limit.Milliseconds() {
		ahead = 0
		if ip.setWarned(true) {
			ip.events.Publish(vcnet.Event{
				Kind:   vcnet.EventSyncWarning,
				Reason: "snapshot stream stalled, frozen at extrapolation limit",
			})
		}
	} else if ahead > 0 {
		ip.setWarned(false)
	}

	dt := float32(0)
	if ahead > 0 {
		dt = float32(ahead) / 1000
	}

	out := make([]vcnet.PlayerState, 0, len(s.Players))
	for id, ps := range s.Players {
		if id == self {
			continue
		}

		if dt > 0 {
			ps.Pos = ps.Pos.Add(ps.Vel.Scale(dt))
		}
		out = append(out, ps)
	}

	return out
}

// setWarned flips the warning latch, reporting whether it newly
// engaged.
func (ip *Interpolator) setWarned(v bool) bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	changed := v && !ip.warned
	ip.warned = v
	return changed
}
