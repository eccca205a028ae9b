package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// silentWAV encodes d of silence at the given rate.
func silentWAV(t *testing.T, rate beep.SampleRate, d time.Duration) []byte {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "clip-*.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(rate.N(d)), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func outputFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "out.bin"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"mp3": MP3, "WAV": WAV, ".mp3": MP3, " wav ": WAV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("ogg"); err == nil {
		t.Error("expected error for ogg")
	}
	if MP3.Ext() != ".mp3" {
		t.Errorf("Ext() = %q", MP3.Ext())
	}
}

func TestSniff(t *testing.T) {
	clip := silentWAV(t, 8000, 10*time.Millisecond)
	if Sniff(clip) != WAV {
		t.Error("expected WAV for RIFF/WAVE header")
	}
	if Sniff([]byte("ID3\x04\x00")) != MP3 {
		t.Error("expected MP3 for ID3 header")
	}
	if Sniff(nil) != MP3 {
		t.Error("expected MP3 fallback")
	}
}

func TestDecodeWAV(t *testing.T) {
	seg, err := Decode(silentWAV(t, 16000, 250*time.Millisecond))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer seg.Streamer.Close()
	if seg.Format != WAV || seg.Sample.SampleRate != 16000 {
		t.Errorf("unexpected segment %+v", seg)
	}
	if seg.Duration() != 250*time.Millisecond {
		t.Errorf("Duration() = %v", seg.Duration())
	}
}

func TestMergeWAV_ConcatenatesInOrderAndResamples(t *testing.T) {
	blobs := [][]byte{
		silentWAV(t, 16000, 100*time.Millisecond),
		[]byte("definitely not audio"),
		silentWAV(t, 8000, 100*time.Millisecond),
	}

	out := outputFile(t)
	res, err := (&Merger{}).Merge(out, blobs, WAV)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Segments != 2 {
		t.Errorf("expected 2 segments, got %d", res.Segments)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 1 {
		t.Errorf("expected position 1 skipped, got %v", res.Skipped)
	}
	if res.Duration != 200*time.Millisecond {
		t.Errorf("expected 200ms, got %v", res.Duration)
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(data)) != res.Bytes {
		t.Errorf("reported %d bytes, file has %d", res.Bytes, len(data))
	}
	seg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode merged output: %v", err)
	}
	defer seg.Streamer.Close()
	if seg.Sample.SampleRate != 16000 {
		t.Errorf("expected first clip's rate 16000, got %d", seg.Sample.SampleRate)
	}
	if d := seg.Duration(); d < 190*time.Millisecond || d > 210*time.Millisecond {
		t.Errorf("merged duration %v, want about 200ms", d)
	}
}

func TestMerge_NothingDecodable(t *testing.T) {
	out := outputFile(t)
	_, err := (&Merger{}).Merge(out, [][]byte{[]byte("junk"), nil}, WAV)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestMergeMP3_SkipsWAVInputs(t *testing.T) {
	out := outputFile(t)
	_, err := (&Merger{}).Merge(out, [][]byte{silentWAV(t, 8000, 10*time.Millisecond)}, MP3)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	if info, _ := out.Stat(); info.Size() != 0 {
		t.Errorf("expected nothing written, got %d bytes", info.Size())
	}
}

func TestID3Lengths(t *testing.T) {
	tag := append([]byte("ID3\x04\x00\x00\x00\x00\x01\x00"), bytes.Repeat([]byte{0}, 128)...)
	if got := id3v2Len(append(tag, 0xFF, 0xFB)); got != 138 {
		t.Errorf("id3v2Len = %d, want 138", got)
	}
	if id3v2Len([]byte{0xFF, 0xFB, 0x90}) != 0 {
		t.Error("expected no ID3v2 tag")
	}
	trailer := append(bytes.Repeat([]byte{1}, 10), append([]byte("TAG"), bytes.Repeat([]byte{0}, 125)...)...)
	if id3v1Len(trailer) != 128 {
		t.Error("expected ID3v1 trailer")
	}
}

func TestMerge_UnknownFormat(t *testing.T) {
	if _, err := (&Merger{}).Merge(outputFile(t), nil, Format("ogg")); err == nil {
		t.Fatal("expected error")
	}
}
