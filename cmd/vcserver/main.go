/*
Vcserver runs an authoritative voxelcraft game server: it listens for
clients over UDP, authenticates them against the local account store
and streams world snapshots.
*/
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
	"github.com/voxelcraft/vcnet/internal/logger"
	"github.com/voxelcraft/vcnet/server"
)

func main() {
	confPath := flag.String("config", "server.yaml", "path to the server configuration")
	flag.Parse()

	logger.Install("log")

	cfg, err := vcnet.LoadServerConfig(*confPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		log.Printf("no config at %s, using defaults", *confPath)
		cfg = vcnet.DefaultServerConfig()
	}

	srv, err := server.NewServer(cfg, game.NewMemoryWorld(), game.NewMemoryEntities())
	if err != nil {
		log.Fatal(err)
	}

	srv.Events().Subscribe(func(ev vcnet.Event) {
		switch ev.Kind {
		case vcnet.EventPeerBanned, vcnet.EventPeerKicked, vcnet.EventPeerRejected:
			log.Printf("event: %v peer %d: %s", ev.Kind, ev.Peer, ev.Reason)
		}
	})

	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}

	quit := make(chan struct{})
	go console(srv, quit)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-quit:
	}

	log.Print("shutting down")
	if err := srv.Stop(); err != nil {
		log.Print(err)
	}
}

// console reads admin commands from stdin. Closing quit shuts the
// server down.
func console(srv *server.Server, quit chan<- struct{}) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "status", "list":
			players := srv.ConnectedPlayers()
			log.Printf("up %s, %d players online", srv.Uptime().Round(time.Second), len(players))
			for _, p := range players {
				log.Printf("  %d %s (%s, ping %dms, online %s)",
					p.ID, p.Username(), p.State(), p.Ping().Milliseconds(), p.SessionAge().Round(time.Second))
			}

		case "metrics":
			for k, v := range srv.Metrics().Snapshot() {
				log.Printf("  %s = %d", k, v)
			}

		case "kick":
			id, ok := peerIDArg(fields, "kick <peer id>")
			if !ok {
				continue
			}
			if err := srv.KickPlayer(id, "kicked from console"); err != nil {
				log.Print(err)
			}

		case "ban":
			id, ok := peerIDArg(fields, "ban <peer id> [minutes]")
			if !ok {
				continue
			}
			var d time.Duration
			if len(fields) > 2 {
				mins, err := strconv.Atoi(fields[2])
				if err != nil {
					log.Print("usage: ban <peer id> [minutes]")
					continue
				}
				d = time.Duration(mins) * time.Minute
			}
			if err := srv.BanPlayer(id, "banned from console", d); err != nil {
				log.Print(err)
			}

		case "unban":
			if len(fields) < 2 {
				log.Print("usage: unban <name or address>")
				continue
			}
			if err := srv.Unban(fields[1]); err != nil {
				log.Print(err)
			}

		case "banlist":
			entries, err := srv.BanList()
			if err != nil {
				log.Print(err)
				continue
			}
			log.Printf("%d active bans", len(entries))
			for _, e := range entries {
				log.Printf("  %s", e)
			}

		case "whitelist":
			if len(fields) < 3 || (fields[1] != "add" && fields[1] != "remove") {
				log.Print("usage: whitelist add|remove <name>")
				continue
			}
			if fields[1] == "add" {
				srv.AddWhitelist(fields[2])
			} else {
				srv.RemoveWhitelist(fields[2])
			}

		case "say":
			srv.Broadcast(vcnet.NewMessage(vcnet.MsgChat, chatPayload("server", strings.Join(fields[1:], " "))))

		case "stop":
			close(quit)
			return

		default:
			log.Printf("unknown command %q (status, metrics, kick, ban, unban, banlist, whitelist, say, stop)", fields[0])
		}
	}
}

func peerIDArg(fields []string, usage string) (vcnet.PeerID, bool) {
	if len(fields) < 2 {
		log.Print("usage: " + usage)
		return 0, false
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		log.Print("usage: " + usage)
		return 0, false
	}
	return vcnet.PeerID(id), true
}

func chatPayload(sender, text string) []byte {
	b, err := (&vcnet.ChatData{Sender: sender, Text: text}).MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}
