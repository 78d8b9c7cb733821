/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the Soundscape project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"soundscape/internal/audio"
	"soundscape/internal/catalog"
	"soundscape/internal/config"
	"soundscape/internal/container"
	"soundscape/internal/deck"
	"soundscape/pkg/spec"
)

const (
	version_major = 1
	version_minor = 0
	app_name      = "Soundscape-Meta"
	general_usage = "Usage: soundscape-meta [--songs DIR] [--json] [song ...]"
	opf_usage     = "       soundscape-meta --opf file.opf"
)

type songMeta struct {
	Name        string  `json:"name"`
	BPM         float64 `json:"bpm"`
	BeatsPerBar int     `json:"time_signature"`
	Duration    float64 `json:"duration"`
	Bars        float64 `json:"bar_count"`
	SecPerBar   float64 `json:"seconds_per_bar"`
	Error       string  `json:"error,omitempty"`
}

func main() {
	songsDir := flag.StringP("songs", "s", "", "songs directory (default from config)")
	metadata := flag.StringP("metadata", "m", "", "metadata CSV (default <songs>/metadata.csv)")
	asJSON := flag.Bool("json", false, "print JSON")
	opf := flag.String("opf", "", "dump the INFO block of a frame file")
	help := flag.BoolP("help", "h", false, "show usage")
	flag.Parse()

	if *help {
		fmt.Printf("\n%s %d.%d\n%s\n%s\n", app_name, version_major, version_minor, general_usage, opf_usage)
		flag.PrintDefaults()
		return
	}

	if *opf != "" {
		if err := dumpFrameFile(*opf); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *songsDir != "" {
		cfg.SongsDir = *songsDir
		cfg.Metadata = filepath.Join(*songsDir, config.DefaultMetadataFile)
	}
	if *metadata != "" {
		cfg.Metadata = *metadata
	}

	log := logrus.NewEntry(cfg.Logger())
	lib := catalog.New(cfg.SongsDir, cfg.Metadata, audio.Probe, log)
	if err := lib.Reload(); err != nil {
		fmt.Fprintln(os.Stderr, "metadata:", err)
		os.Exit(1)
	}

	names := flag.Args()
	if len(names) == 0 {
		if names, err = lib.ListSongs(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	var out []songMeta
	for _, name := range names {
		out = append(out, describe(lib, name))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SONG\tBPM\tSIG\tDURATION\tBARS\tSEC/BAR")
	for _, m := range out {
		if m.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%s\n", m.Name, m.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%02d:%02d\t%.2f\t%.3f\n",
			m.Name, m.BPM, m.BeatsPerBar, int(m.Duration)/60, int(m.Duration)%60, m.Bars, m.SecPerBar)
	}
	tw.Flush()
}

func describe(lib *catalog.Library, name string) songMeta {
	m := songMeta{Name: name}
	song, err := lib.Lookup(name)
	if err != nil {
		m.Error = err.Error()
		return m
	}
	t, err := deck.NewTrack(song.Name, song.Path, song.Duration, song.BPM, song.BeatsPerBar)
	if err != nil {
		m.Error = err.Error()
		return m
	}
	m.BPM = t.BPM()
	m.BeatsPerBar = t.BeatsPerBar()
	m.Duration = t.Duration()
	m.Bars = t.Bars()
	m.SecPerBar = t.SecondsPerBar()
	return m
}

func dumpFrameFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	ff, err := container.Unpack(f)
	if err != nil {
		return err
	}
	fmt.Printf("File     : %s\n", filepath.Base(path))
	fmt.Printf("Magic    : %s\n", spec.FrameMagic)
	fmt.Printf("Packets  : %d\n", ff.Len())
	fmt.Printf("Duration : %.3fs\n", ff.Duration())
	b, _ := json.MarshalIndent(ff.Info, "", "  ")
	fmt.Printf("INFO     : %s\n", b)
	return nil
}
