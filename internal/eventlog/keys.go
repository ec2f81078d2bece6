package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - eventlog/m
// - eventlog/e/{seq_be8}

var (
	metaKey     = []byte("eventlog/m")
	entryPrefix = []byte("eventlog/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyMeta returns the metadata key holding the last assigned sequence.
func KeyMeta() []byte {
	return append([]byte(nil), metaKey...)
}

// KeyEntry builds the entry key with a big-endian sequence for proper ordering.
func KeyEntry(seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return appendBE8(k, seq)
}

// seqOf extracts the sequence from an entry key.
func seqOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// entryBounds returns iterator bounds covering every entry.
func entryBounds() (low, high []byte) {
	return KeyEntry(0), append(KeyEntry(^uint64(0)), 0x00)
}
