package pipeline

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Job IDs are ULIDs: 48-bit millisecond timestamp plus 80 bits of entropy,
// Crockford base32 encoded to 26 characters, so they sort by creation time.

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ulidMu  sync.Mutex
	lastMS  uint64
	lastSeq uint16
)

func generateULID() string {
	return ulidAt(time.Now())
}

func ulidAt(t time.Time) string {
	ulidMu.Lock()
	ms := uint64(t.UnixMilli())
	if ms == lastMS {
		lastSeq++
	} else {
		lastMS, lastSeq = ms, 0
	}
	seq := lastSeq
	ulidMu.Unlock()

	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], ms<<16) // top 48 bits
	rand.Read(b[6:])
	// Leading entropy bytes carry a per-millisecond counter so IDs minted in
	// the same millisecond still sort in creation order.
	binary.BigEndian.PutUint16(b[6:8], seq)
	return encodeBase32(b)
}

// encodeBase32 writes the 128-bit value as 26 five-bit digits, most
// significant first. The first digit holds only the top 3 bits.
func encodeBase32(b [16]byte) string {
	hi := binary.BigEndian.Uint64(b[0:8])
	lo := binary.BigEndian.Uint64(b[8:16])
	var out [26]byte
	for i := 25; i >= 0; i-- {
		out[i] = crockford[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out[:])
}
