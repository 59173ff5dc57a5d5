package server

import (
	"fmt"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
)

// Input rate limits. A client ticking at 60Hz sends 60 commands per
// second; twice that is already suspect.
const (
	inputRateWindow = time.Second
	inputRateLimit  = 120
)

// vetInput applies the anti-cheat checks to one command. A false
// return discards the command; repeated offenses escalate through
// warnings to a kick.
func (srv *Server) vetInput(p *Peer, in *vcnet.InputCommand) bool {
	now := time.Now()

	p.mu.Lock()
	cutoff := now.Add(-inputRateWindow)
	window := p.inputWindow[:0]
	for _, t := range p.inputWindow {
		if t.After(cutoff) {
			window = append(window, t)
		}
	}
	window = append(window, now)
	p.inputWindow = window
	rate := len(window)
	p.mu.Unlock()

	if rate > inputRateLimit {
		srv.warn(p, "input rate too high")
		return false
	}

	if in.DeltaTime < 0 || in.DeltaTime > game.MaxDelta {
		srv.warn(p, fmt.Sprintf("implausible input delta %.3fs", in.DeltaTime))
		return false
	}

	if in.MoveX < -1 || in.MoveX > 1 || in.MoveZ < -1 || in.MoveZ > 1 {
		srv.warn(p, "movement axis out of range")
		return false
	}

	return true
}
