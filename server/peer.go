/*
Package server implements the authoritative side of the protocol: the
listener, peer lifecycle, SRP authentication against a sqlite
credential store, admission control, the snapshot pipeline and
broadcast fan-out.
*/
package server

import (
	"log"
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/channel"
)

// A Peer is one remote client as the server sees it.
type Peer struct {
	*channel.Conn

	ID vcnet.PeerID

	mu       sync.Mutex
	state    vcnet.PeerState
	username string
	admin    bool

	// SRP handshake intermediates, valid only while Authenticating.
	srpA []byte
	srpS []byte
	srpB []byte
	srpK []byte
	// Pending registration credentials, held until the client proves
	// it can derive the session key.
	regSalt     []byte
	regVerifier []byte

	joined        time.Time
	lastInputSeq  uint32
	ackedSnapshot uint64
	wantFull      bool

	inputWindow []time.Time
	warnings    int
}

func (p *Peer) State() vcnet.PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Peer) setState(s vcnet.PeerState) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()

	if prev != s {
		log.Printf("peer %d: %s -> %s", p.ID, prev, s)
	}
}

// Username returns the name the peer authenticated under, or the
// empty string before authentication.
func (p *Peer) Username() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.username
}

// SessionAge returns how long the peer has been connected. joined is
// set once at creation and never written again.
func (p *Peer) SessionAge() time.Duration {
	return time.Since(p.joined)
}

func (p *Peer) Admin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.admin
}

// AckedSnapshot returns the newest snapshot sequence the peer has
// confirmed, and whether it has requested a full snapshot.
func (p *Peer) AckedSnapshot() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ackedSnapshot, p.wantFull
}

func (p *Peer) recordStateAck(d *vcnet.StateAckData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d.AppliedSeq > p.ackedSnapshot {
		p.ackedSnapshot = d.AppliedSeq
	}
	if d.RequestFull {
		p.wantFull = true
	}
}

// clearWantFull is called once a full snapshot has been queued.
func (p *Peer) clearWantFull() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.wantFull = false
}

// clearHandshake drops SRP intermediates once authentication is
// settled either way.
func (p *Peer) clearHandshake() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.srpA, p.srpS, p.srpB, p.srpK = nil, nil, nil, nil
	p.regSalt, p.regVerifier = nil, nil
}
