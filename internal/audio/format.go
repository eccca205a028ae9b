// Package audio merges per-chunk speech clips into a single audiobook file.
package audio

import (
	"bytes"
	"fmt"
	"strings"
)

// Format is an audio container the merger can read or write.
type Format string

const (
	MP3 Format = "mp3"
	WAV Format = "wav"
)

// ParseFormat accepts "mp3" or "wav" in any case, with or without a dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case MP3, WAV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported audio format %q (want mp3 or wav)", s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }

// Sniff guesses the container from the leading bytes. Anything that is not a
// RIFF/WAVE header is assumed to be MP3.
func Sniff(b []byte) Format {
	if len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")) {
		return WAV
	}
	return MP3
}

// id3v2Len returns the size of a leading ID3v2 tag, or 0.
func id3v2Len(b []byte) int {
	if len(b) < 10 || !bytes.Equal(b[0:3], []byte("ID3")) {
		return 0
	}
	// Syncsafe integer: 7 bits per byte.
	size := int(b[6]&0x7f)<<21 | int(b[7]&0x7f)<<14 | int(b[8]&0x7f)<<7 | int(b[9]&0x7f)
	n := 10 + size
	if b[5]&0x10 != 0 {
		n += 10 // footer present
	}
	if n > len(b) {
		return len(b)
	}
	return n
}

// id3v1Len returns 128 when b ends with an ID3v1 tag.
func id3v1Len(b []byte) int {
	if len(b) >= 128 && bytes.Equal(b[len(b)-128:len(b)-125], []byte("TAG")) {
		return 128
	}
	return 0
}
