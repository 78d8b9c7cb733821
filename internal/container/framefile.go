// Package container reads and writes .opf frame files: a magic header
// followed by tagged blocks. ADAT holds length-prefixed opus packets, INFO a
// JSON description written last.
package container

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"soundscape/pkg/spec"
)

var (
	ErrBadMagic = errors.New("not a frame file")
	ErrNoAudio  = errors.New("frame file has no audio block")
)

// MaxFrame is the largest packet a uint16 length prefix can describe.
const MaxFrame = 1<<16 - 1

// Info is the INFO block.
type Info struct {
	Title      string  `json:"title,omitempty"`
	Source     string  `json:"source,omitempty"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	FrameMS    int     `json:"frame_ms"`
	Frames     int     `json:"frames"`
	Duration   float64 `json:"duration"`
}

type ReadSeekerAt interface {
	io.ReadSeeker
	io.ReaderAt
}

// FrameFile is an indexed frame file. Packets are read on demand.
type FrameFile struct {
	Info    Info
	r       io.ReaderAt
	offsets []int64
	sizes   []uint16
}

// Unpack validates the magic, walks the tags and indexes every packet.
func Unpack(r ReadSeekerAt) (*FrameFile, error) {
	magic := make([]byte, len(spec.FrameMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if string(magic) != spec.FrameMagic {
		return nil, errors.Wrapf(ErrBadMagic, "magic %q", magic)
	}

	ff := &FrameFile{r: r}
	haveAudio := false

	for {
		tag := make([]byte, 4)
		if _, err := io.ReadFull(r, tag); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "read tag")
		}
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, errors.Wrapf(err, "read %s size", tag)
		}
		start, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}

		switch string(tag) {
		case spec.TagAudio:
			if err := ff.index(r, start, int64(size)); err != nil {
				return nil, err
			}
			haveAudio = true

		case spec.TagInfo:
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, errors.Wrap(err, "read INFO")
			}
			if err := json.Unmarshal(buf, &ff.Info); err != nil {
				return nil, errors.Wrap(err, "parse INFO")
			}
			continue
		}

		// unknown tags and the indexed audio block are skipped
		if _, err := r.Seek(start+int64(size), io.SeekStart); err != nil {
			return nil, err
		}
	}

	if !haveAudio {
		return nil, ErrNoAudio
	}
	return ff, nil
}

func (ff *FrameFile) index(r io.ReaderAt, start, size int64) error {
	br := bufio.NewReader(io.NewSectionReader(r, start, size))
	off := start
	end := start + size
	for off < end {
		var n uint16
		if err := binary.Read(br, binary.BigEndian, &n); err != nil {
			return errors.Wrapf(err, "frame %d header", len(ff.offsets))
		}
		off += 2
		if off+int64(n) > end {
			return errors.Errorf("frame %d overruns the audio block", len(ff.offsets))
		}
		if _, err := br.Discard(int(n)); err != nil {
			return errors.Wrapf(err, "frame %d body", len(ff.offsets))
		}
		ff.offsets = append(ff.offsets, off)
		ff.sizes = append(ff.sizes, n)
		off += int64(n)
	}
	return nil
}

// Len is the number of packets.
func (ff *FrameFile) Len() int { return len(ff.offsets) }

// Frame reads packet i into buf, growing it when needed.
func (ff *FrameFile) Frame(i int, buf []byte) ([]byte, error) {
	if i < 0 || i >= len(ff.offsets) {
		return nil, io.EOF
	}
	n := int(ff.sizes[i])
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := ff.r.ReadAt(buf, ff.offsets[i]); err != nil {
		return nil, errors.Wrapf(err, "frame %d", i)
	}
	return buf, nil
}

// Duration prefers the recorded duration and falls back to the frame count.
func (ff *FrameFile) Duration() float64 {
	if ff.Info.Duration > 0 {
		return ff.Info.Duration
	}
	return float64(ff.Len()*spec.FrameSize) / 1000
}

// Writer produces a frame file. The ADAT size is patched in on Close, so
// the destination must be seekable.
type Writer struct {
	w       io.WriteSeeker
	sizePos int64
	start   int64
	frames  int
	closed  bool
}

func NewWriter(w io.WriteSeeker) (*Writer, error) {
	if _, err := io.WriteString(w, spec.FrameMagic); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, spec.TagAudio); err != nil {
		return nil, err
	}
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(0)); err != nil {
		return nil, err
	}
	return &Writer{w: w, sizePos: pos, start: pos + 4}, nil
}

func (fw *Writer) WriteFrame(p []byte) error {
	if fw.closed {
		return errors.New("write after close")
	}
	if len(p) == 0 || len(p) > MaxFrame {
		return errors.Errorf("frame of %d bytes", len(p))
	}
	if err := binary.Write(fw.w, binary.BigEndian, uint16(len(p))); err != nil {
		return err
	}
	if _, err := fw.w.Write(p); err != nil {
		return err
	}
	fw.frames++
	return nil
}

func (fw *Writer) Frames() int { return fw.frames }

// Close seals the audio block and appends info. Frames is filled in.
func (fw *Writer) Close(info Info) error {
	if fw.closed {
		return nil
	}
	fw.closed = true

	end, err := fw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if end-fw.start > int64(^uint32(0)) {
		return errors.New("audio block exceeds 4GiB")
	}
	if _, err := fw.w.Seek(fw.sizePos, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(fw.w, binary.BigEndian, uint32(end-fw.start)); err != nil {
		return err
	}
	if _, err := fw.w.Seek(end, io.SeekStart); err != nil {
		return err
	}

	info.Frames = fw.frames
	return writeTag(fw.w, spec.TagInfo, info)
}

func writeTag(w io.Writer, tag string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, tag); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
