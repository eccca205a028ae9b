package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// ErrNoSegments is returned when none of the inputs could be decoded.
var ErrNoSegments = errors.New("no decodable audio segments")

// resampleQuality trades CPU for fidelity when sample rates differ.
const resampleQuality = 4

// Segment is a decoded clip.
type Segment struct {
	Format   Format
	Sample   beep.Format
	Samples  int
	Streamer beep.StreamSeekCloser
}

// Duration is the playing time of the segment.
func (s *Segment) Duration() time.Duration {
	return s.Sample.SampleRate.D(s.Samples)
}

// Decode sniffs and decodes one clip. The caller must close the streamer.
func Decode(b []byte) (*Segment, error) {
	if len(b) == 0 {
		return nil, errors.New("empty audio")
	}
	f := Sniff(b)
	var (
		st  beep.StreamSeekCloser
		sf  beep.Format
		err error
	)
	switch f {
	case WAV:
		st, sf, err = wav.Decode(bytes.NewReader(b))
	default:
		// The decoder measures length only when the source can seek.
		st, sf, err = mp3.Decode(readSeekNopCloser{bytes.NewReader(b)})
	}
	if err != nil {
		return nil, err
	}
	return &Segment{Format: f, Sample: sf, Samples: st.Len(), Streamer: st}, nil
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

// Result describes a finished merge.
type Result struct {
	Segments int           // Inputs that made it into the output
	Skipped  []int         // Input positions that were dropped
	Duration time.Duration // Playing time of the output
	Bytes    int64
}

// Merger concatenates clips in the order given.
type Merger struct {
	Logger *slog.Logger
}

func (m *Merger) log() *slog.Logger {
	if m == nil || m.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.Logger
}

// Merge writes blobs, in order, to w as a single out-format file. Blobs that
// cannot be decoded are skipped and logged. If nothing decodes, ErrNoSegments
// is returned and nothing is written.
func (m *Merger) Merge(w io.WriteSeeker, blobs [][]byte, out Format) (*Result, error) {
	switch out {
	case WAV:
		return m.mergeWAV(w, blobs)
	case MP3:
		return m.mergeMP3(w, blobs)
	default:
		return nil, fmt.Errorf("unsupported output format %q", out)
	}
}

// decodeAll decodes every blob accepted by keep, logging and skipping the rest.
func (m *Merger) decodeAll(blobs [][]byte, keep func(*Segment) bool) ([]*Segment, []int) {
	var segs []*Segment
	var skipped []int
	for i, b := range blobs {
		seg, err := Decode(b)
		if err != nil {
			m.log().Warn("skipping undecodable audio segment", "position", i, "bytes", len(b), "error", err)
			skipped = append(skipped, i)
			continue
		}
		if keep != nil && !keep(seg) {
			seg.Streamer.Close()
			m.log().Warn("skipping audio segment in incompatible format", "position", i, "format", seg.Format)
			skipped = append(skipped, i)
			continue
		}
		segs = append(segs, seg)
	}
	return segs, skipped
}

// mergeWAV decodes every clip to PCM, resamples to the first clip's rate and
// encodes one WAV stream.
func (m *Merger) mergeWAV(w io.WriteSeeker, blobs [][]byte) (*Result, error) {
	segs, skipped := m.decodeAll(blobs, nil)
	defer func() {
		for _, s := range segs {
			s.Streamer.Close()
		}
	}()
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}

	target := segs[0].Sample
	streams := make([]beep.Streamer, 0, len(segs))
	var samples int
	for _, s := range segs {
		if s.Sample.SampleRate == target.SampleRate {
			streams = append(streams, s.Streamer)
			samples += s.Samples
			continue
		}
		streams = append(streams, beep.Resample(resampleQuality, s.Sample.SampleRate, target.SampleRate, s.Streamer))
		samples += target.SampleRate.N(s.Duration())
	}

	cw := &countingWriteSeeker{WriteSeeker: w}
	if err := wav.Encode(cw, beep.Seq(streams...), target); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return &Result{
		Segments: len(segs),
		Skipped:  skipped,
		Duration: target.SampleRate.D(samples),
		Bytes:    cw.max,
	}, nil
}

// mergeMP3 concatenates MP3 frames. Clips are decoded first only to prove
// they are valid; ID3 tags are kept on the first clip and stripped from the
// rest. WAV clips cannot be transcoded and are skipped.
func (m *Merger) mergeMP3(w io.WriteSeeker, blobs [][]byte) (*Result, error) {
	segs, skipped := m.decodeAll(blobs, func(s *Segment) bool { return s.Format == MP3 })
	res := &Result{Skipped: skipped}
	for _, s := range segs {
		res.Duration += s.Duration()
		s.Streamer.Close()
	}
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}

	var kept [][]byte
	var pos []int
	skip := make(map[int]bool, len(skipped))
	for _, i := range skipped {
		skip[i] = true
	}
	for i, b := range blobs {
		if !skip[i] {
			kept = append(kept, b)
			pos = append(pos, i)
		}
	}

	for i, b := range kept {
		if i > 0 {
			b = b[id3v2Len(b):]
		}
		if i < len(kept)-1 {
			b = b[:len(b)-id3v1Len(b)]
		}
		n, err := w.Write(b)
		res.Bytes += int64(n)
		if err != nil {
			return nil, fmt.Errorf("write mp3 segment %d: %w", pos[i], err)
		}
	}
	res.Segments = len(kept)
	return res, nil
}

// countingWriteSeeker records the furthest offset written.
type countingWriteSeeker struct {
	io.WriteSeeker
	off, max int64
}

func (c *countingWriteSeeker) Write(p []byte) (int, error) {
	n, err := c.WriteSeeker.Write(p)
	c.off += int64(n)
	if c.off > c.max {
		c.max = c.off
	}
	return n, err
}

func (c *countingWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	off, err := c.WriteSeeker.Seek(offset, whence)
	if err == nil {
		c.off = off
	}
	return off, err
}
