package core

import "encoding/binary"

// encodeU64/encodeAddress are the argument encodings passed to system Move
// functions (spec.md §6). The wire format is opaque to this core — the
// Runtime black box is the only thing that ever decodes them — so a plain
// big-endian/BCS-flavored encoding is enough to exercise the call shape.
func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeAddress(addr [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, addr[:])
	return out
}

func encodeBool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
