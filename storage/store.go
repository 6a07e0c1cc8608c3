package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/young-rocks/aptos-core/core"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
	"github.com/young-rocks/aptos-core/log"
)

// Store is the pebble-backed MoveResolver that anchors a node's real state
// (SPEC_FULL.md §4.6). It is the base resolver every block's
// ExecutorViewWithChangeSet/recordingResolver overlay is built on top of —
// this package never sees a RespawnedSession or a ChangeSet overlay, only
// committed bytes.
type Store struct {
	db     *pebble.DB
	loader *loaderCache
	groups *groupCache
	wal    *wal
}

// Options configures where a Store keeps its data on disk.
type Options struct {
	// Dir is the pebble data directory.
	Dir string
	// WALDir is where the write-ahead log lives; defaults to Dir+"/wal" when
	// empty.
	WALDir string
	// LoaderCacheBytes / GroupCacheBytes size the two fastcache instances
	// (SPEC_FULL.md §4.6 "loader cache" / "resource-group read cache").
	LoaderCacheBytes int
	GroupCacheBytes  int
}

// Open opens (creating if absent) a pebble store at opts.Dir, plus its WAL.
func Open(opts Options) (*Store, error) {
	db, err := pebble.Open(opts.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble store at %s: %w", opts.Dir, err)
	}
	loaderBytes := opts.LoaderCacheBytes
	if loaderBytes <= 0 {
		loaderBytes = 32 << 20
	}
	groupBytes := opts.GroupCacheBytes
	if groupBytes <= 0 {
		groupBytes = 32 << 20
	}
	walDir := opts.WALDir
	if walDir == "" {
		walDir = opts.Dir + "/wal"
	}
	w, err := openWAL(walDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening write-ahead log at %s: %w", walDir, err)
	}
	return &Store{
		db:     db,
		loader: newLoaderCache(loaderBytes),
		groups: newGroupCache(groupBytes),
		wal:    w,
	}, nil
}

func (s *Store) Close() error {
	if err := s.wal.close(); err != nil {
		return err
	}
	return s.db.Close()
}

// encodeValue/decodeValue serialize a StateValue's bytes plus its optional
// metadata into one pebble value.
func encodeValue(bytes []byte, md *types.StateValueMetadata) []byte {
	out := make([]byte, 1, 1+16+len(bytes))
	if md != nil {
		out[0] = 1
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[0:8], md.SlotDepositOctas)
		binary.BigEndian.PutUint64(buf[8:16], md.CreationTimeUsec)
		out = append(out, buf[:]...)
	} else {
		out[0] = 0
	}
	return append(out, bytes...)
}

func decodeValue(raw []byte) (*vm.StateValue, error) {
	if len(raw) < 1 {
		return nil, errors.New("storage: truncated value record")
	}
	hasMD := raw[0] == 1
	rest := raw[1:]
	var md *types.StateValueMetadata
	if hasMD {
		if len(rest) < 16 {
			return nil, errors.New("storage: truncated value metadata")
		}
		md = &types.StateValueMetadata{
			SlotDepositOctas: binary.BigEndian.Uint64(rest[0:8]),
			CreationTimeUsec: binary.BigEndian.Uint64(rest[8:16]),
		}
		rest = rest[16:]
	}
	bytesCopy := append([]byte(nil), rest...)
	return &vm.StateValue{Bytes: bytesCopy, Metadata: md}, nil
}

func (s *Store) get(key []byte) (*vm.StateValue, error) {
	raw, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	defer closer.Close()
	return decodeValue(raw)
}

func (s *Store) GetModule(key types.StateKey) (*vm.StateValue, error) {
	k := moduleKey(key)
	if v, ok := s.loader.get(k); ok {
		return v, nil
	}
	v, err := s.get(k)
	if err != nil {
		return nil, err
	}
	s.loader.put(k, v)
	return v, nil
}

func (s *Store) GetResource(key types.StateKey) (*vm.StateValue, error) {
	return s.get(resourceKey(key))
}

func (s *Store) GetResourceFromGroup(key types.StateKey, tag string, layout []byte) ([]byte, error) {
	k := groupMemberKey(key, tag)
	if b, ok := s.groups.get(k); ok {
		return b, nil
	}
	v, err := s.get(k)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	s.groups.put(k, v.Bytes)
	return v.Bytes, nil
}

func (s *Store) GetAggregatorV1Value(key types.StateKey) (uint64, error) {
	v, err := s.get(aggregatorKey(key))
	if err != nil {
		return 0, err
	}
	if v == nil || len(v.Bytes) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v.Bytes), nil
}

func (s *Store) GetDelayedFieldValue(id types.DelayedFieldID) (uint64, error) {
	raw, closer, err := s.db.Get(delayedFieldKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	defer closer.Close()
	if len(raw) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// DelayedFieldTryAddDeltaOutcome has no algebra of its own at the storage
// layer (SPEC_FULL.md §9: bounded-math composition is an external
// DelayedFieldAlgebra collaborator) — a Store never composes deltas, it only
// ever materializes the committed value above.
func (s *Store) DelayedFieldTryAddDeltaOutcome(types.DelayedFieldID, types.DelayedApplyChange, uint64) (bool, error) {
	return false, errors.New("storage: delta composition is not a base-resolver concern, use a DelayedFieldAlgebra")
}

// IsDelayedFieldOptimizationCapable is true for a real store: delayed-field
// exchange is only skipped (spec.md §4.4) over an in-memory overlay.
func (s *Store) IsDelayedFieldOptimizationCapable() bool { return true }

// ReleaseResourceGroupCache drops the group cache, matching the respawn
// hook's naming (spec.md §4.2 stage 2) even though a Store's group cache is
// process-lifetime rather than per-session.
func (s *Store) ReleaseResourceGroupCache() { s.groups.reset() }

// ResourceGroupSize reports the byte length of the group's own metadata
// record in the store (members are stored under separate keys and are not
// counted), unlike an overlay which always answers 0 (spec.md §4.4 "Group
// size").
func (s *Store) ResourceGroupSize(key types.StateKey) (uint64, error) {
	v, err := s.get(encodeStateKey(nsGroup, key))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return uint64(len(v.Bytes)), nil
}

// Apply commits a finalized block's ChangeSet: first to the write-ahead log
// (crash-safe, snappy-compressed), then to the pebble store in one batch
// (SPEC_FULL.md §4.6). BlockDriver only ever calls MoveResolver/Apply — it
// has no pebble/billy dependency of its own.
func (s *Store) Apply(cs *types.ChangeSet) error {
	if err := s.wal.append(cs); err != nil {
		return fmt.Errorf("%w: wal append: %v", core.ErrStorage, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for k, op := range cs.ResourceWriteSet {
		if err := applyOp(batch, resourceKey(k), op); err != nil {
			return err
		}
	}
	for k, op := range cs.ModuleWriteSet {
		key := moduleKey(k)
		if err := applyOp(batch, key, op); err != nil {
			return err
		}
		s.loader.invalidate(key)
	}
	for k, op := range cs.AggregatorV1WriteSet {
		if err := applyOp(batch, aggregatorKey(k), op); err != nil {
			return err
		}
	}
	for k, gw := range cs.ResourceGroupWriteSet {
		metaKey := encodeStateKey(nsGroup, k)
		if err := applyOp(batch, metaKey, gw.MetadataOp); err != nil {
			return err
		}
		for tag, inner := range gw.InnerOps {
			memberKey := groupMemberKey(k, tag)
			if err := applyOp(batch, memberKey, inner.Op); err != nil {
				return err
			}
			s.groups.invalidate(memberKey)
		}
	}
	for id, change := range cs.DelayedFieldChangeSet {
		if change.Kind != types.DelayedFieldCreate {
			continue
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], change.CreatedValue.Lo)
		if err := batch.Set(delayedFieldKey(id), buf[:], nil); err != nil {
			return fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: committing batch: %v", core.ErrStorage, err)
	}
	log.Debug("applied change set", "resources", len(cs.ResourceWriteSet), "modules", len(cs.ModuleWriteSet), "events", len(cs.Events))
	return nil
}

func applyOp(batch *pebble.Batch, key []byte, op types.WriteOp) error {
	if op.IsDeletion() {
		if err := batch.Delete(key, nil); err != nil {
			return fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		return nil
	}
	if err := batch.Set(key, encodeValue(op.Bytes, op.Metadata), nil); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	return nil
}

var _ vm.MoveResolver = (*Store)(nil)
var _ vm.ResourceGroupSizeResolver = (*Store)(nil)
