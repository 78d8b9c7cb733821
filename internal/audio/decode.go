// Package audio plays decks through the system speaker with beep.
package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	gowav "github.com/go-audio/wav"
	"github.com/pkg/errors"

	"soundscape/internal/codec"
	"soundscape/internal/container"
	"soundscape/pkg/spec"
)

var ErrUnsupported = errors.New("unsupported audio format")

// Decode opens path as a seekable beep stream.
func Decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == spec.FrameExt {
		s, format, err := codec.Open(path)
		if err != nil {
			return nil, beep.Format{}, err
		}
		return s, format, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, errors.Wrap(ErrUnsupported, ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return s, format, nil
}

// Probe returns the duration of path in seconds. It satisfies
// catalog.ProbeFunc.
func Probe(path string) (float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return probeWav(path)
	case spec.FrameExt:
		return probeFrames(path)
	}
	s, format, err := Decode(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return format.SampleRate.D(s.Len()).Seconds(), nil
}

func probeWav(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := gowav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.Errorf("%s: not a pcm wav", filepath.Base(path))
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, errors.Wrap(err, filepath.Base(path))
	}
	return d.Seconds(), nil
}

func probeFrames(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	ff, err := container.Unpack(f)
	if err != nil {
		return 0, errors.Wrap(err, filepath.Base(path))
	}
	return ff.Duration(), nil
}
