/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the Soundscape project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"soundscape/internal/catalog"
	"soundscape/internal/config"
	"soundscape/internal/events"
	"soundscape/internal/ipc"
	"soundscape/internal/player"
	"soundscape/pkg/spec"
)

func main() {
	var (
		cfgPath  = flag.StringP("config", "c", "", "YAML config file (default $"+config.EnvConfig+")")
		songsDir = flag.StringP("songs", "s", "", "songs directory")
		metadata = flag.StringP("metadata", "m", "", "metadata CSV (default <songs>/metadata.csv)")
		socket   = flag.String("socket", "", "control socket path")
		headless = flag.Bool("headless", false, "play through silent simulated decks")
		logLevel = flag.String("log-level", "", "panic|fatal|error|warn|info|debug|trace")
		version  = flag.BoolP("version", "v", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s V.%d.%d\n", spec.ServerName, spec.VersionMajor, spec.VersionMinor)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	// flags win over file and environment
	if flag.CommandLine.Changed("songs") {
		cfg.SongsDir = *songsDir
		if !flag.CommandLine.Changed("metadata") {
			cfg.Metadata = ""
		}
	}
	if flag.CommandLine.Changed("metadata") {
		cfg.Metadata = *metadata
	}
	if flag.CommandLine.Changed("socket") {
		cfg.Socket = *socket
	}
	if flag.CommandLine.Changed("headless") {
		cfg.Headless = *headless
	}
	if flag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log := logrus.NewEntry(cfg.Logger()).WithField("app", spec.ServerName)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib := catalog.New(cfg.SongsDir, cfg.Metadata, probe, log)
	if err := lib.Reload(); err != nil {
		// songs stay listable; LOAD reports SONG_NOT_FOUND until fixed
		log.WithError(err).Warn("metadata not loaded")
	}
	if cfg.WatchMetadata {
		go func() {
			err := lib.Watch(ctx, func(err error) {
				if err != nil {
					log.WithError(err).Warn("metadata reload failed")
					return
				}
				log.Info("metadata reloaded")
			})
			if err != nil {
				log.WithError(err).Warn("metadata watch disabled")
			}
		}()
	}

	out := openDecks(cfg, log)
	defer out.Close()

	bus := events.NewBroadcaster(log)
	defer bus.Close()

	session := player.New(player.Config{
		Library:           lib,
		Decks:             out.decks,
		Sink:              bus,
		Log:               log,
		CrossfadeDuration: cfg.Crossfade,
		CrossfadeSteps:    cfg.CrossfadeSteps,
	})
	log.WithFields(logrus.Fields{
		"session":  session.ID(),
		"songs":    cfg.SongsDir,
		"headless": out.headless,
	}).Info("session ready")

	srv := ipc.New(ipc.Config{
		Controller:  session,
		Songs:       lib,
		Events:      bus,
		Log:         log,
		EventBuffer: cfg.SubscriberBuffer,
	})
	ln, err := srv.Listen(cfg.Socket)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.Socket)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-served:
	}

	srv.Close()
	if terr := session.Teardown(); terr != nil {
		log.WithError(terr).Warn("teardown")
	}
	return err
}
