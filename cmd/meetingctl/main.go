package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"meeting-room-backend/deck"
	"meeting-room-backend/meeting"
	"meeting-room-backend/syncclient"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	identityPath := cfg.IdentityPath
	if identityPath == "" {
		if identityPath, err = meeting.DefaultIdentityPath(); err != nil {
			log.Fatal().Err(err).Msg("cannot locate identity file")
		}
	}
	voterID, err := meeting.LoadOrCreateVoterID(identityPath, cfg.UserID)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load voter identity")
	}

	d, err := deck.Load(cfg.DeckPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load deck")
	}

	name := cfg.Name
	if name == "" {
		name = "Guest"
	}

	store := meeting.NewStore(meeting.Session{
		VoterID:    voterID,
		VoterLabel: name,
		CanControl: cfg.CanControl,
	}, meeting.Options{BallotKeys: d.BallotKeys()})
	if !cfg.Offline {
		store.Connect(syncclient.New(cfg.ServerURL, nil, syncclient.WithVoterID(voterID)))
	}
	defer store.Disconnect()

	ctrl := deck.NewController(d, store)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Print(ctrl.Render())
	fmt.Print("> ")

	// 后台轮询带来的变化最多每秒重绘一次
	redraw := time.NewTicker(time.Second)
	defer redraw.Stop()
	dirty := false

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				store.Wait()
				return
			}
			if execute(line, store, ctrl, name, os.Stdout) {
				store.Wait()
				return
			}
			fmt.Print("> ")
		case <-store.Changes():
			dirty = true
		case <-redraw.C:
			if dirty {
				dirty = false
				fmt.Print("\n", ctrl.Render(), "> ")
			}
		}
	}
}
