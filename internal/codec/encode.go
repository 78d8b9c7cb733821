package codec

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hraban/opus"
	"github.com/pkg/errors"

	"soundscape/pkg/spec"
)

var ErrUnsupportedWav = errors.New("unsupported wav")

// Frame is one encoded packet and the per-channel samples it carries
// before padding.
type Frame struct {
	Data    []byte
	Samples int
}

// WavInfo describes a wav source that EncodeWav accepts.
type WavInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   float64
}

func openWav(r io.ReadSeeker) (*wav.Decoder, WavInfo, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, WavInfo{}, err
	}
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, WavInfo{}, errors.Wrap(ErrUnsupportedWav, "not a pcm wav")
	}
	info := WavInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	switch {
	case info.SampleRate != spec.SampleRate:
		return nil, info, errors.Wrapf(ErrUnsupportedWav, "sample rate %d, want %d", info.SampleRate, spec.SampleRate)
	case info.BitDepth != 16:
		return nil, info, errors.Wrapf(ErrUnsupportedWav, "bit depth %d, want 16", info.BitDepth)
	case info.Channels != 1 && info.Channels != 2:
		return nil, info, errors.Wrapf(ErrUnsupportedWav, "%d channels", info.Channels)
	}
	if d, err := dec.Duration(); err == nil {
		info.Duration = d.Seconds()
	}
	// Duration reads the header; rewind to the first chunk.
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, info, err
	}
	dec = wav.NewDecoder(r)
	return dec, info, nil
}

// ProbeWav validates r without reading the samples.
func ProbeWav(r io.ReadSeeker) (WavInfo, error) {
	_, info, err := openWav(r)
	return info, err
}

// readBlocks streams r one second at a time. fn receives interleaved stereo
// samples; mono sources are duplicated onto both channels.
func readBlocks(r io.ReadSeeker, fn func(stereo []int) error) (WavInfo, error) {
	dec, info, err := openWav(r)
	if err != nil {
		return info, err
	}
	buf := &audio.IntBuffer{
		Data:   make([]int, spec.SampleRate*info.Channels),
		Format: &audio.Format{NumChannels: info.Channels, SampleRate: spec.SampleRate},
	}
	var stereo []int
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return info, errors.Wrap(err, "read pcm")
		}
		if n == 0 {
			break
		}
		block := buf.Data[:n]
		if info.Channels == 1 {
			stereo = stereo[:0]
			for _, v := range block {
				stereo = append(stereo, v, v)
			}
			block = stereo
		}
		if err := fn(block); err != nil {
			return info, err
		}
		if err == io.EOF {
			break
		}
	}
	return info, nil
}

// Peak returns the largest absolute sample of r.
func Peak(r io.ReadSeeker) (int, error) {
	peak := 0
	_, err := readBlocks(r, func(block []int) error {
		for _, v := range block {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		return nil
	})
	return peak, err
}

// NormalizeGain is the factor that lifts peak to just below full scale.
func NormalizeGain(peak int) float64 {
	if peak <= 0 {
		return 1
	}
	return 32760.0 / float64(peak)
}

// EncodeWav encodes r into 20ms opus packets and sends them on out. gain
// scales every sample with clipping; 1 leaves the signal untouched. The
// caller owns out and closes it after EncodeWav returns. The result is the
// encoded duration in seconds.
func EncodeWav(r io.ReadSeeker, gain float64, out chan<- Frame) (float64, error) {
	enc, err := opus.NewEncoder(spec.SampleRate, spec.Channels, opus.AppAudio)
	if err != nil {
		return 0, errors.Wrap(err, "opus encoder")
	}

	pcm := make([]int16, spec.FrameSamples*spec.Channels)
	packet := make([]byte, 1500)
	filled := 0
	total := 0

	flush := func() error {
		for i := filled; i < len(pcm); i++ {
			pcm[i] = 0
		}
		n, err := enc.Encode(pcm, packet)
		if err != nil {
			return errors.Wrap(err, "opus encode")
		}
		data := make([]byte, n)
		copy(data, packet[:n])
		out <- Frame{Data: data, Samples: filled / spec.Channels}
		total += filled
		filled = 0
		return nil
	}

	_, err = readBlocks(r, func(block []int) error {
		for _, v := range block {
			pcm[filled] = scale(v, gain)
			filled++
			if filled == len(pcm) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if filled > 0 {
		if err := flush(); err != nil {
			return 0, err
		}
	}
	return float64(total) / float64(spec.SampleRate) / float64(spec.Channels), nil
}

func scale(v int, gain float64) int16 {
	if gain == 1 {
		return int16(v)
	}
	f := math.Round(float64(v) * gain)
	switch {
	case f > math.MaxInt16:
		return math.MaxInt16
	case f < math.MinInt16:
		return math.MinInt16
	}
	return int16(f)
}
