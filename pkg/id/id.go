package id

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence]. Poll requests and
// wait tickets are named by IDs so log lines sort in issue order.
type ID [16]byte

// ErrMalformed is returned by Parse for input that is not 32 hex digits.
var ErrMalformed = errors.New("id: malformed")

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns a hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Short returns the last 8 hex digits, enough to tell siblings apart in logs.
func (i ID) Short() string { return hex.EncodeToString(i[12:]) }

// IsZero reports whether i is the zero ID.
func (i ID) IsZero() bool { return i == ID{} }

// Time returns the millisecond timestamp embedded in the ID.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[0:8])))
}

// Seq returns the per-millisecond sequence embedded in the ID.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse decodes the String form of an ID.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != 32 {
		return out, ErrMalformed
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return ID{}, ErrMalformed
	}
	return out, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If the clock goes backwards it pins to lastMs and
// increments the sequence; on sequence overflow it waits for the next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}
