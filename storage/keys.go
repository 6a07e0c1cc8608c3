// Package storage realizes MoveResolver over an embedded LSM-tree store
// (SPEC_FULL.md §4.6, component I), fronted by loader and resource-group
// caches and backed by a crash-safe write-ahead log for committed change
// sets. It plays the role the teacher's core/rawdb plays for block/header
// data: a key-schema plus a set of typed accessor functions over a raw KV
// handle (core/rawdb/schema_rollup.go, core/rawdb/accessors_chain_rollup.go).
package storage

import (
	"encoding/binary"

	"github.com/young-rocks/aptos-core/core/types"
)

// Namespace prefixes keep the five state-key families (module, resource,
// resource-group, aggregator, delayed-field) from colliding inside one
// pebble keyspace — the same role headerBaseFeesPrefix plays in
// core/rawdb/schema_rollup.go, generalized from one prefix to one per
// family.
const (
	nsModule byte = 'm'
	nsRes    byte = 'r'
	nsGroup  byte = 'g'
	nsAggV1  byte = 'a'
	nsDelay  byte = 'd'
)

// encodeStateKey builds the on-disk key for a resource/module slot:
// namespace ++ address ++ len(tag) ++ tag. The length prefix keeps the
// encoding unambiguous without requiring a tag-internal escape.
func encodeStateKey(ns byte, key types.StateKey) []byte {
	out := make([]byte, 0, 1+32+4+len(key.Tag))
	out = append(out, ns)
	out = append(out, key.Address[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key.Tag)))
	out = append(out, lenBuf[:]...)
	out = append(out, key.Tag...)
	return out
}

func moduleKey(key types.StateKey) []byte { return encodeStateKey(nsModule, key) }
func resourceKey(key types.StateKey) []byte { return encodeStateKey(nsRes, key) }
func aggregatorKey(key types.StateKey) []byte { return encodeStateKey(nsAggV1, key) }

// groupMemberKey addresses one tagged member within a resource group's slot.
func groupMemberKey(key types.StateKey, tag string) []byte {
	base := encodeStateKey(nsGroup, key)
	out := make([]byte, 0, len(base)+4+len(tag))
	out = append(out, base...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(tag)))
	out = append(out, lenBuf[:]...)
	out = append(out, tag...)
	return out
}

func delayedFieldKey(id types.DelayedFieldID) []byte {
	out := make([]byte, 5)
	out[0] = nsDelay
	binary.BigEndian.PutUint32(out[1:], id.UniqueIndex)
	return out
}
