package server

import (
	"context"
	"crypto/subtle"
	"log"

	"github.com/HimbeerserverDE/srp"
	"github.com/voxelcraft/vcnet"
)

// handleAuthRequest runs the first authentication round. Under SRP
// the client sends its public ephemeral A and gets back the stored
// salt and the server ephemeral B. Under FirstSRP the client sends a
// freshly derived salt and verifier to register.
func (srv *Server) handleAuthRequest(p *Peer, msg *vcnet.Message) {
	if p.State() != vcnet.StateAuthenticating {
		return
	}

	var d vcnet.AuthRequestData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed auth request")
		return
	}

	switch d.Mech {
	case vcnet.AuthMechFirstSRP:
		srv.register(p, &d)
	case vcnet.AuthMechSRP:
		srv.challenge(p, &d)
	default:
		srv.authFail(p, "unsupported auth mechanism")
	}
}

// register stores the client-derived credentials for a new account
// and accepts it immediately; there is nothing to prove against yet.
func (srv *Server) register(p *Peer, d *vcnet.AuthRequestData) {
	if !srv.cfg.AllowRegistration {
		srv.authFail(p, "registration is closed")
		return
	}

	known, err := srv.creds.HasUser(p.Username())
	if err != nil || known {
		srv.authFail(p, "name is already taken")
		return
	}

	if len(d.Salt) == 0 || len(d.Verifier) == 0 {
		srv.authFail(p, "missing credentials")
		return
	}

	userID, err := srv.creds.Register(p.Username(), d.Salt, d.Verifier)
	if err != nil {
		log.Printf("peer %d: register: %v", p.ID, err)
		srv.authFail(p, "credential store unavailable")
		return
	}

	log.Printf("peer %d: registered %q", p.ID, p.Username())
	srv.authSucceed(p, userID)
}

// challenge answers round one of SRP for a known account.
func (srv *Server) challenge(p *Peer, d *vcnet.AuthRequestData) {
	salt, verifier, _, err := srv.creds.Credentials(p.Username())
	if err != nil {
		srv.authFail(p, "unknown user")
		return
	}

	B, _, K, err := srp.Handshake(d.A, verifier)
	if err != nil || B == nil {
		log.Printf("peer %d: srp handshake: %v", p.ID, err)
		srv.authFail(p, "handshake failed")
		return
	}

	p.mu.Lock()
	p.srpA = d.A
	p.srpS = salt
	p.srpB = B
	p.srpK = K
	p.mu.Unlock()

	reply := vcnet.NewMessage(vcnet.MsgAuthResponse, mustMarshal(&vcnet.AuthResponseData{
		Salt: salt,
		B:    B,
	}))
	p.Send(context.Background(), reply.To(p.ID))
}

// handleAuthResponse checks the client proof M against the session
// key negotiated in round one.
func (srv *Server) handleAuthResponse(p *Peer, msg *vcnet.Message) {
	if p.State() != vcnet.StateAuthenticating {
		return
	}

	var d vcnet.AuthResponseData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed auth response")
		return
	}

	p.mu.Lock()
	A, s, B, K := p.srpA, p.srpS, p.srpB, p.srpK
	p.mu.Unlock()

	if K == nil {
		srv.authFail(p, "no handshake in progress")
		return
	}

	M := srp.CalculateM([]byte(p.Username()), s, A, B, K)
	if subtle.ConstantTimeCompare(M, d.Proof) != 1 {
		srv.authFail(p, "wrong password")
		return
	}

	_, _, userID, err := srv.creds.Credentials(p.Username())
	if err != nil {
		srv.authFail(p, "credential store unavailable")
		return
	}

	srv.authSucceed(p, userID)
}

// authSucceed moves the peer into Loading and spawns its player
// state. The snapshot loop takes over from here: the peer reaches
// Playing once it acknowledges the initial full snapshot.
func (srv *Server) authSucceed(p *Peer, userID int64) {
	p.clearHandshake()

	admin, err := srv.creds.IsAdmin(p.Username())
	if err == nil {
		p.mu.Lock()
		p.admin = admin
		p.mu.Unlock()
	}

	success := vcnet.NewMessage(vcnet.MsgAuthSuccess, mustMarshal(&vcnet.AuthSuccessData{
		UserID:   userID,
		Username: p.Username(),
	}))
	p.Send(context.Background(), success.To(p.ID))

	srv.mu.Lock()
	srv.players[p.ID] = vcnet.PlayerState{ID: p.ID, Rot: vcnet.QuatIdent, Health: 100}
	srv.mu.Unlock()

	p.setState(vcnet.StateLoading)
	srv.events.Publish(vcnet.Event{Kind: vcnet.EventConnected, Peer: p.ID})
	log.Printf("peer %d: authenticated as %q", p.ID, p.Username())
}

func (srv *Server) authFail(p *Peer, reason string) {
	p.clearHandshake()

	fail := vcnet.NewMessage(vcnet.MsgAuthFailure, mustMarshal(&vcnet.AuthFailureData{
		Reason: reason,
	}))
	p.Send(context.Background(), fail.To(p.ID))

	srv.reject(p, vcnet.RejectAuthFailed, reason)
}
