package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voxelcraft/vcnet"
)

func (srv *Server) handleChat(p *Peer, msg *vcnet.Message) {
	if !p.State().Ready() {
		return
	}

	var d vcnet.ChatData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed chat message")
		return
	}

	text := strings.TrimSpace(d.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text[1:])
		srv.runCommand(p, fields[0], fields[1:])
		return
	}

	relay := vcnet.NewMessage(vcnet.MsgChat, mustMarshal(&vcnet.ChatData{
		Sender: p.Username(),
		Text:   text,
	}))
	srv.Broadcast(relay)
}

func (srv *Server) handleCommand(p *Peer, msg *vcnet.Message) {
	if !p.State().Ready() {
		return
	}

	var d vcnet.CommandData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		srv.protocolViolation(p, "malformed command")
		return
	}

	srv.runCommand(p, d.Name, d.Args)
}

// runCommand executes a chat command on behalf of a peer. Moderation
// commands require the admin flag on the account.
func (srv *Server) runCommand(p *Peer, name string, args []string) {
	switch name {
	case "list":
		var names []string
		for _, other := range srv.ConnectedPlayers() {
			names = append(names, other.Username())
		}
		srv.tell(p, fmt.Sprintf("%d online: %s", len(names), strings.Join(names, ", ")))

	case "ping":
		srv.tell(p, fmt.Sprintf("your ping is %dms", p.Ping().Milliseconds()))

	case "kick":
		if !srv.requireAdmin(p) {
			return
		}
		if len(args) < 1 {
			srv.tell(p, "usage: /kick <name> [reason]")
			return
		}
		target, ok := srv.peerByName(args[0])
		if !ok {
			srv.tell(p, "no such player: "+args[0])
			return
		}
		srv.KickPlayer(target.ID, reasonArg(args[1:], "kicked by admin"))

	case "ban":
		if !srv.requireAdmin(p) {
			return
		}
		if len(args) < 1 {
			srv.tell(p, "usage: /ban <name> [minutes] [reason]")
			return
		}
		target, ok := srv.peerByName(args[0])
		if !ok {
			srv.tell(p, "no such player: "+args[0])
			return
		}

		var d time.Duration
		rest := args[1:]
		if len(rest) > 0 {
			if mins, err := strconv.Atoi(rest[0]); err == nil {
				d = time.Duration(mins) * time.Minute
				rest = rest[1:]
			}
		}
		if err := srv.BanPlayer(target.ID, reasonArg(rest, "banned by admin"), d); err != nil {
			srv.tell(p, "ban failed: "+err.Error())
		}

	case "unban":
		if !srv.requireAdmin(p) {
			return
		}
		if len(args) < 1 {
			srv.tell(p, "usage: /unban <name or address>")
			return
		}
		if err := srv.creds.Unban(args[0]); err != nil {
			srv.tell(p, "unban failed: "+err.Error())
			return
		}
		srv.tell(p, "unbanned "+args[0])

	case "banlist":
		if !srv.requireAdmin(p) {
			return
		}
		entries, err := srv.creds.BanList()
		if err != nil {
			srv.tell(p, "ban list unavailable: "+err.Error())
			return
		}
		if len(entries) == 0 {
			srv.tell(p, "no active bans")
			return
		}
		for _, e := range entries {
			srv.tell(p, e.String())
		}

	default:
		srv.tell(p, "unknown command: /"+name)
	}
}

func (srv *Server) requireAdmin(p *Peer) bool {
	if p.Admin() {
		return true
	}
	srv.tell(p, "you lack the privilege to do that")
	return false
}

// tell sends a server-originated chat line to one peer.
func (srv *Server) tell(p *Peer, text string) {
	msg := vcnet.NewMessage(vcnet.MsgChat, mustMarshal(&vcnet.ChatData{
		Sender: "server",
		Text:   text,
	}))
	p.Send(context.Background(), msg.To(p.ID))
}

func (srv *Server) peerByName(name string) (*Peer, bool) {
	for _, p := range srv.ConnectedPlayers() {
		if p.Username() == name {
			return p, true
		}
	}
	return nil, false
}

func reasonArg(args []string, fallback string) string {
	if len(args) == 0 {
		return fallback
	}
	return strings.Join(args, " ")
}
