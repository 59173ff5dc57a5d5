package server

import (
	"log"

	"github.com/voxelcraft/vcnet"
)

// admit runs the admission checks on a connection request, in fixed
// order: capacity, protocol version, whitelist, blacklist, ban store.
// A zero return means the peer may proceed to authentication.
func (srv *Server) admit(p *Peer, req *vcnet.ConnectionRequestData) (vcnet.RejectReason, string) {
	srv.mu.Lock()
	// Capacity counts every live slot, including peers still in the
	// handshake; otherwise a burst of simultaneous connects all pass
	// and the server ends up over its limit.
	live := 0
	for id, other := range srv.byID {
		if id == p.ID {
			continue
		}
		switch other.State() {
		case vcnet.StateDisconnecting, vcnet.StateDisconnected:
		default:
			live++
		}
	}
	whitelisted := !srv.cfg.EnableWhitelist || contains(srv.cfg.Whitelist, req.Username)
	blacklisted := contains(srv.cfg.Blacklist, req.Username)
	srv.mu.Unlock()

	if live >= srv.cfg.MaxPlayers {
		return vcnet.RejectServerFull, "server is full"
	}

	if !vcnet.ProtoVersion.Compatible(req.Version, srv.cfg.Codec.StrictVersionMatching) {
		return vcnet.RejectVersionMismatch, "incompatible protocol version"
	}

	if !whitelisted {
		return vcnet.RejectWhitelistExcluded, "not on the whitelist"
	}

	if blacklisted {
		return vcnet.RejectBanned, "you are banned from this server"
	}

	banned, reason, err := srv.creds.IsBanned(hostOf(p.Addr()), req.Username)
	if err != nil {
		log.Printf("peer %d: ban lookup: %v", p.ID, err)
	}
	if banned {
		if reason == "" {
			reason = "you are banned from this server"
		}
		return vcnet.RejectBanned, reason
	}

	return 0, ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
