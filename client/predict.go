package client

import (
	"sync"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
)

// A Predictor runs the player simulation locally ahead of the server
// and repairs its state when the authoritative result disagrees.
type Predictor struct {
	mu        sync.Mutex
	state     vcnet.PlayerState
	seeded    bool
	pending   []pendingInput
	max       int
	threshold float32
	metrics   *vcnet.Metrics
}

// pendingInput is an input not yet acknowledged by the server, along
// with the state prediction arrived at after applying it.
type pendingInput struct {
	cmd   vcnet.InputCommand
	after vcnet.PlayerState
}

func NewPredictor(max int, threshold float32, metrics *vcnet.Metrics) *Predictor {
	if max <= 0 {
		max = 64
	}
	if threshold <= 0 {
		threshold = 0.1
	}

	return &Predictor{
		max:       max,
		threshold: threshold,
		metrics:   metrics,
	}
}

// Seed installs the authoritative starting state.
func (p *Predictor) Seed(s vcnet.PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = s
	p.seeded = true
	p.pending = p.pending[:0]
}

// Reset discards all prediction state. Used across reconnects, where
// unacknowledged inputs no longer apply to anything.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seeded = false
	p.pending = p.pending[:0]
}

// Apply simulates one input immediately and remembers it for
// reconciliation. When the buffer is full the oldest entry is
// dropped; the server's acknowledgments are what normally drain it.
func (p *Predictor) Apply(cmd *vcnet.InputCommand) vcnet.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	game.ApplyInput(&p.state, cmd)

	if len(p.pending) >= p.max {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, pendingInput{cmd: *cmd, after: p.state})

	return p.state
}

// State returns the current predicted state.
func (p *Predictor) State() (vcnet.PlayerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state, p.seeded
}

// Pending returns how many inputs await acknowledgment.
func (p *Predictor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pending)
}

// Reconcile checks the authoritative state against the prediction
// recorded for the acknowledged input. Within the threshold nothing
// changes; beyond it the state snaps to the server's and all pending
// inputs are re-simulated on top. Applying the same authoritative
// state twice is a no-op: the second pass discards no inputs and
// re-derives the same result.
func (p *Predictor) Reconcile(auth vcnet.PlayerState) (corrected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seeded {
		p.state = auth
		p.seeded = true
		return false
	}

	ack := auth.AckInputSeq

	// Prediction recorded at the acknowledged input, if still held.
	var predicted *vcnet.PlayerState
	kept := p.pending[:0]
	for i := range p.pending {
		e := p.pending[i]
		if e.cmd.Seq == ack {
			predicted = &e.after
		}
		if vcnet.SeqNewer(e.cmd.Seq, ack) {
			kept = append(kept, e)
		}
	}
	p.pending = kept

	if predicted == nil {
		// Nothing to compare against: either already reconciled or
		// the input fell out of the buffer. Trust the server.
		if len(p.pending) == 0 {
			p.state = auth
		}
		return false
	}

	err := predicted.Pos.Dist(auth.Pos)
	p.metrics.RecordPredictionError(err)

	if err <= p.threshold {
		return false
	}

	// Misprediction: rewind to the authoritative state and replay
	// everything the server has not seen yet.
	p.state = auth
	for i := range p.pending {
		game.ApplyInput(&p.state, &p.pending[i].cmd)
		p.pending[i].after = p.state
	}
	p.metrics.Reconciliations.Add(1)

	return true
}
