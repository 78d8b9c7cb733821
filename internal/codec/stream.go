// Package codec turns wav into opus frame files and streams frame files back
// as beep audio.
package codec

import (
	"os"

	"github.com/faiface/beep"
	"github.com/hraban/opus"
	"github.com/pkg/errors"

	"soundscape/internal/container"
	"soundscape/pkg/spec"
)

// maxFrameSamples covers the longest opus packet (120ms at 48kHz).
const maxFrameSamples = 5760

// Stream plays a frame file. It decodes one packet at a time and keeps the
// leftover samples of the last packet in buffer.
type Stream struct {
	file   *os.File
	ff     *container.FrameFile
	dec    *opus.Decoder
	packet []byte
	pcm    []int16
	buffer [][2]float64
	next   int // next packet to decode
	pos    int // samples handed out
	err    error
}

var _ beep.StreamSeekCloser = (*Stream)(nil)

// Open indexes path and prepares a decoder positioned at the start.
func Open(path string) (*Stream, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	ff, err := container.Unpack(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, errors.Wrap(err, path)
	}
	dec, err := opus.NewDecoder(spec.SampleRate, spec.Channels)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, errors.Wrap(err, "opus decoder")
	}
	s := &Stream{
		file: f,
		ff:   ff,
		dec:  dec,
		pcm:  make([]int16, maxFrameSamples*spec.Channels),
	}
	return s, Format(), nil
}

// Format is the fixed format of every frame file.
func Format() beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(spec.SampleRate), NumChannels: spec.Channels, Precision: 2}
}

// Info exposes the INFO block.
func (s *Stream) Info() container.Info { return s.ff.Info }

// Duration in seconds.
func (s *Stream) Duration() float64 { return s.ff.Duration() }

func (s *Stream) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(s.buffer) == 0 {
			if !s.decodeNext() {
				break
			}
			continue
		}
		n := copy(samples[filled:], s.buffer)
		s.buffer = s.buffer[n:]
		filled += n
	}
	s.pos += filled
	return filled, filled > 0
}

func (s *Stream) decodeNext() bool {
	if s.next >= s.ff.Len() {
		return false
	}
	var err error
	s.packet, err = s.ff.Frame(s.next, s.packet)
	s.next++
	if err != nil {
		s.err = err
		return false
	}
	n, err := s.dec.Decode(s.packet, s.pcm)
	if err != nil {
		// a corrupt packet becomes one frame of silence
		n = spec.FrameSamples
		for i := range s.pcm[:n*spec.Channels] {
			s.pcm[i] = 0
		}
	}
	s.buffer = s.buffer[:0]
	for i := 0; i < n; i++ {
		s.buffer = append(s.buffer, [2]float64{
			float64(s.pcm[i*2]) / 32768.0,
			float64(s.pcm[i*2+1]) / 32768.0,
		})
	}
	return true
}

func (s *Stream) Err() error { return s.err }

// Len is the stream length in samples, padding of the last frame included.
func (s *Stream) Len() int { return s.ff.Len() * spec.FrameSamples }

func (s *Stream) Position() int { return s.pos }

// Seek jumps to sample p. Opus packets depend on decoder state, so seeking
// resets the decoder at the containing packet and discards the samples
// before p.
func (s *Stream) Seek(p int) error {
	if p < 0 || p > s.Len() {
		return errors.Errorf("seek %d outside [0, %d]", p, s.Len())
	}
	dec, err := opus.NewDecoder(spec.SampleRate, spec.Channels)
	if err != nil {
		return errors.Wrap(err, "opus decoder")
	}
	s.dec = dec
	s.err = nil
	s.buffer = s.buffer[:0]
	s.next = p / spec.FrameSamples
	s.pos = p
	if skip := p % spec.FrameSamples; skip > 0 && s.decodeNext() {
		if skip > len(s.buffer) {
			skip = len(s.buffer)
		}
		s.buffer = s.buffer[skip:]
	}
	return nil
}

func (s *Stream) Close() error { return s.file.Close() }
