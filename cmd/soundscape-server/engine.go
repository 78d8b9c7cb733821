/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the Soundscape project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"github.com/sirupsen/logrus"

	"soundscape/internal/audio"
	"soundscape/internal/config"
	"soundscape/internal/deck"
)

// probe is the catalog's duration source.
var probe = audio.Probe

// outputs holds the two deck outputs and the speaker behind them, if any.
type outputs struct {
	decks    [2]deck.Output
	engine   *audio.Engine
	headless bool
}

// openDecks opens the speaker, or falls back to simulated decks when the
// config asks for it or no audio device is available.
func openDecks(cfg config.Config, log *logrus.Entry) *outputs {
	if cfg.Headless {
		return &outputs{headless: true}
	}
	engine, err := audio.NewEngine(log.WithField("component", "audio"))
	if err != nil {
		log.WithError(err).Warn("no audio device, running headless")
		return &outputs{headless: true}
	}
	return &outputs{
		decks:  [2]deck.Output{engine.Channel("A"), engine.Channel("B")},
		engine: engine,
	}
}

func (o *outputs) Close() {
	if o.engine != nil {
		o.engine.Close()
	}
}
