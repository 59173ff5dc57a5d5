/*
Vcclient connects to a voxelcraft server and runs a bot that walks
forward, useful for exercising a server end to end.
*/
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/client"
	"github.com/voxelcraft/vcnet/game"
	"github.com/voxelcraft/vcnet/internal/logger"
)

func main() {
	confPath := flag.String("config", "client.yaml", "path to the client configuration")
	flag.Parse()

	logger.Install("log")

	cfg, err := vcnet.LoadClientConfig(*confPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		log.Printf("no config at %s, using defaults", *confPath)
		cfg = vcnet.DefaultClientConfig()
	}

	cl, err := client.NewClient(cfg, game.NewMemoryWorld())
	if err != nil {
		log.Fatal(err)
	}

	cl.Events().Subscribe(func(ev vcnet.Event) {
		switch ev.Kind {
		case vcnet.EventReconnecting:
			log.Printf("reconnecting (%d/%d)", ev.Attempt, ev.MaxAttempts)
		case vcnet.EventSyncWarning:
			log.Printf("sync warning: %s", ev.Reason)
		}
	})

	if err := cl.Connect(); err != nil {
		log.Fatal(err)
	}
	log.Printf("connected as peer %d", cl.PeerID())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	tick := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	stats := time.NewTicker(10 * time.Second)
	defer tick.Stop()
	defer stats.Stop()

	last := time.Now()
	for {
		select {
		case <-quit:
			log.Print("disconnecting")
			if err := cl.Disconnect(); err != nil {
				log.Print(err)
			}
			return

		case now := <-tick.C:
			dt := float32(now.Sub(last).Seconds())
			last = now

			if cl.State() != vcnet.StatePlaying {
				continue
			}
			if _, err := cl.SendInput(vcnet.InputCommand{
				Buttons:   vcnet.BtnForward,
				DeltaTime: dt,
			}); err != nil {
				log.Printf("input: %v", err)
			}

		case <-stats.C:
			if s, ok := cl.PredictedState(); ok {
				log.Printf("pos %.1f,%.1f,%.1f ping %dms others %d",
					s.Pos.X, s.Pos.Y, s.Pos.Z,
					cl.Ping().Milliseconds(),
					len(cl.OtherPlayers(cl.ServerNow())))
			}
		}
	}
}
