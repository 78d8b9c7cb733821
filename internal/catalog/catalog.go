// Package catalog resolves song names to files and tempo metadata.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/pkg/spec"
)

// DefaultMetadataFile is looked up inside the songs directory.
const DefaultMetadataFile = "metadata.csv"

// ErrNotFound is returned for names that are not playable songs.
var ErrNotFound = errors.New("song not found")

// AllowedFormats lists the extensions ListSongs and Lookup accept.
var AllowedFormats = []string{".mp3", ".wav", spec.FrameExt}

// Song is everything the player needs to build a track.
type Song struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	BPM         float64 `json:"bpm"`
	BeatsPerBar int     `json:"time_signature"`
	Duration    float64 `json:"duration"`
}

// Tempo is one metadata row.
type Tempo struct {
	BPM         float64
	BeatsPerBar int
}

// ProbeFunc returns the duration of an audio file in seconds.
type ProbeFunc func(path string) (float64, error)

type Library struct {
	dir      string
	metaPath string
	probe    ProbeFunc
	log      *logrus.Entry

	mu     sync.RWMutex
	tempos map[string]Tempo
}

// New builds a library over dir. metaPath may be empty, meaning
// dir/metadata.csv. The metadata is not read until Reload.
func New(dir, metaPath string, probe ProbeFunc, log *logrus.Entry) *Library {
	if metaPath == "" {
		metaPath = filepath.Join(dir, DefaultMetadataFile)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Library{
		dir:      dir,
		metaPath: metaPath,
		probe:    probe,
		log:      log.WithField("component", "catalog"),
		tempos:   map[string]Tempo{},
	}
}

func (l *Library) Dir() string          { return l.dir }
func (l *Library) MetadataPath() string { return l.metaPath }

// Reload re-reads the metadata file. On error the previous table stays.
func (l *Library) Reload() error {
	f, err := os.Open(l.metaPath)
	if err != nil {
		return errors.Wrap(err, "open metadata")
	}
	defer f.Close()

	tempos, err := ParseMetadata(f)
	if err != nil {
		return errors.Wrapf(err, "parse %s", l.metaPath)
	}

	l.mu.Lock()
	l.tempos = tempos
	l.mu.Unlock()

	l.log.WithField("songs", len(tempos)).Info("metadata loaded")
	return nil
}

// ParseMetadata reads a CSV with a header naming song_name, bpm and
// time_signature, in any column order. A time signature may be written as
// "4" or "4/4"; only the numerator is kept. Values are not range checked
// here; tracks reject bad tempos when they are built.
func ParseMetadata(r io.Reader) (map[string]Tempo, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return map[string]Tempo{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "header")
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range []string{"song_name", "bpm", "time_signature"} {
		if _, ok := col[want]; !ok {
			return nil, errors.Errorf("missing column %q", want)
		}
	}

	out := map[string]Tempo{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		name := strings.TrimSpace(rec[col["song_name"]])
		if name == "" {
			continue
		}
		bpm, err := strconv.ParseFloat(strings.TrimSpace(rec[col["bpm"]]), 64)
		if err != nil {
			return nil, errors.Errorf("line %d: bad bpm %q", line, rec[col["bpm"]])
		}
		sig := strings.TrimSpace(rec[col["time_signature"]])
		if i := strings.IndexByte(sig, '/'); i >= 0 {
			sig = sig[:i]
		}
		beats, err := strconv.Atoi(sig)
		if err != nil {
			return nil, errors.Errorf("line %d: bad time signature %q", line, rec[col["time_signature"]])
		}
		out[name] = Tempo{BPM: bpm, BeatsPerBar: beats}
	}
	return out, nil
}

// Tempo returns the metadata row for name.
func (l *Library) Tempo(name string) (Tempo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tempos[name]
	return t, ok
}

// Lookup resolves name to a playable song. Names are plain file names inside
// the songs directory.
func (l *Library) Lookup(name string) (Song, error) {
	if !validName(name) {
		return Song{}, errors.Wrapf(ErrNotFound, "invalid name %q", name)
	}
	if !Allowed(name) {
		return Song{}, errors.Wrapf(ErrNotFound, "%s: unsupported format", name)
	}
	tempo, ok := l.Tempo(name)
	if !ok {
		return Song{}, errors.Wrapf(ErrNotFound, "%s: not in metadata", name)
	}

	path := filepath.Join(l.dir, name)
	if _, err := os.Stat(path); err != nil {
		return Song{}, errors.Wrapf(ErrNotFound, "%s: %v", name, err)
	}

	var duration float64
	if l.probe != nil {
		d, err := l.probe(path)
		if err != nil {
			return Song{}, errors.Wrapf(err, "probe %s", name)
		}
		duration = d
	}

	return Song{
		Name:        name,
		Path:        path,
		BPM:         tempo.BPM,
		BeatsPerBar: tempo.BeatsPerBar,
		Duration:    duration,
	}, nil
}

// ListSongs returns the playable file names in the songs directory, sorted.
func (l *Library) ListSongs() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list songs")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !Allowed(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Allowed reports whether name has a playable extension.
func Allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedFormats {
		if ext == a {
			return true
		}
	}
	return false
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}
