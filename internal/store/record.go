package store

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, false
	}
	if n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return nil, nil, false
	}
	return append([]byte(nil), header...), append([]byte(nil), payload...), true
}

// encodeElement stores the push time alongside the payload.
func encodeElement(pushedAtMs int64, payload []byte) []byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], uint64(pushedAtMs))
	return encodeRecord(h[:], payload)
}

func decodeElement(b []byte) (Element, bool) {
	header, payload, ok := decodeRecord(b)
	if !ok || len(header) < 8 {
		return Element{}, false
	}
	return Element{Payload: payload, PushedAtMs: int64(binary.BigEndian.Uint64(header[:8]))}, true
}
