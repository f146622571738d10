package store

import (
	"encoding/binary"
)

// Keyspace (byte-wise, lexicographically sortable):
// - ns/{ns}/dq/{name}/m               head_be8|tail_be8
// - ns/{ns}/dq/{name}/e/{pos_be8}     record(header=pushedAtMs_be8, payload)

var (
	sep        = byte('/')
	nsPrefix   = []byte("ns/")
	dqSeg      = []byte("/dq/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

// origin is the initial head and tail of an empty deque. Positions grow
// downwards for head pushes and upwards for tail pushes.
const origin uint64 = 1 << 63

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyDequePrefix returns the prefix shared by every deque in a namespace.
func KeyDequePrefix(namespace string) []byte {
	k := make([]byte, 0, len(namespace)+8)
	k = append(k, nsPrefix...)
	k = append(k, namespace...)
	k = append(k, dqSeg...)
	return k
}

// KeyDequeMeta builds the head/tail metadata key for a deque.
func KeyDequeMeta(namespace, name string) []byte {
	k := KeyDequePrefix(namespace)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// KeyDequeEntryPrefix returns the range prefix of a deque's entries.
func KeyDequeEntryPrefix(namespace, name string) []byte {
	k := KeyDequePrefix(namespace)
	k = append(k, name...)
	k = append(k, entrySeg...)
	return k
}

// KeyDequeEntry builds the entry key for a position.
func KeyDequeEntry(namespace, name string, pos uint64) []byte {
	return appendBE8(KeyDequeEntryPrefix(namespace, name), pos)
}

func encodeMeta(head, tail uint64) []byte {
	out := make([]byte, 0, 16)
	out = appendBE8(out, head)
	return appendBE8(out, tail)
}

func decodeMeta(b []byte) (head, tail uint64, ok bool) {
	if len(b) < 16 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:16]), true
}
