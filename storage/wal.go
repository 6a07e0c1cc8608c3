package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/holiman/billy"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/log"
)

// wal is the crash-safe append-only log of committed ChangeSets
// (SPEC_FULL.md §4.6: "Finalized per-block ChangeSets are appended to a
// write-ahead log before being applied to the pebble store"). Store.Apply
// always appends here first. At open, the stored entries are replayed only
// to recover the id of the last one (lastID); nothing in this package
// re-applies an entry to the pebble store.
type wal struct {
	db     billy.Database
	mu     sync.Mutex
	lastID uint64
}

// walSlotSizer buckets entries by a small set of size classes — the shelf-
// sizing idiom billy's caller is expected to supply, mirroring how geth's
// blob pool buckets blob-shaped records by size class rather than storing
// every entry in one unbounded shelf.
func walSlotSizer(size uint32) uint32 {
	switch {
	case size <= 4<<10:
		return 4 << 10
	case size <= 32<<10:
		return 32 << 10
	case size <= 256<<10:
		return 256 << 10
	default:
		return 4 << 20
	}
}

func openWAL(dir string) (*wal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &wal{}
	// billy replays every already-stored slot through onData at Open time —
	// this is how a restart recovers the id of the last committed block
	// without a separate index.
	onData := func(id uint64, data []byte) error {
		w.lastID = id
		return nil
	}
	db, err := billy.Open(billy.Options{Path: dir, Repair: true}, walSlotSizer, onData)
	if err != nil {
		return nil, err
	}
	w.db = db
	return w, nil
}

func (w *wal) close() error { return w.db.Close() }

// encodeChangeSet gob-encodes then snappy-compresses a ChangeSet
// (SPEC_FULL.md §4.6 "snappy-compressed on write").
func encodeChangeSet(cs *types.ChangeSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cs); err != nil {
		return nil, fmt.Errorf("gob-encoding change set: %w", err)
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func decodeChangeSet(compressed []byte) (*types.ChangeSet, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("snappy-decoding WAL entry: %w", err)
	}
	cs := new(types.ChangeSet)
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(cs); err != nil {
		return nil, fmt.Errorf("gob-decoding WAL entry: %w", err)
	}
	return cs, nil
}

// append writes one committed ChangeSet to the log.
func (w *wal) append(cs *types.ChangeSet) error {
	enc, err := encodeChangeSet(cs)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id, err := w.db.Put(enc)
	if err != nil {
		return err
	}
	w.lastID = id
	return nil
}

// get reads back one previously-appended entry by id.
func (w *wal) get(id uint64) (*types.ChangeSet, error) {
	raw, err := w.db.Get(id)
	if err != nil {
		return nil, err
	}
	cs, err := decodeChangeSet(raw)
	if err != nil {
		log.Error("corrupt WAL entry", "id", id, "err", err)
		return nil, err
	}
	return cs, nil
}
