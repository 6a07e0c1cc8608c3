// Package vm defines the core's contract with the Move runtime: the
// read-only resolver a Session consults, the Runtime/Session black box
// (explicitly out of scope per spec.md §1 — treated as an external
// collaborator), and the respawned-session overlay that lets an epilogue
// observe post-execution state without committing it (spec.md §4.4).
package vm

import "github.com/young-rocks/aptos-core/core/types"

// StateValue is what a resolver returns for a populated slot: the raw bytes
// plus the storage-fee metadata attached when the slot was created.
type StateValue struct {
	Bytes    []byte
	Metadata *types.StateValueMetadata
}

// MoveResolver is the read-only interface to base state (spec.md §2
// component A, §6 "Consumer traits"). Every method may return an error for
// a genuine storage failure (spec.md §7 StorageError); "not found" is
// signaled by a nil *StateValue / zero value with no error.
type MoveResolver interface {
	GetModule(key types.StateKey) (*StateValue, error)
	GetResource(key types.StateKey) (*StateValue, error)
	GetResourceFromGroup(key types.StateKey, tag string, layout []byte) ([]byte, error)
	GetAggregatorV1Value(key types.StateKey) (uint64, error)
	GetDelayedFieldValue(id types.DelayedFieldID) (uint64, error)
	DelayedFieldTryAddDeltaOutcome(id types.DelayedFieldID, base types.DelayedApplyChange, maxValue uint64) (overflow bool, err error)
	IsDelayedFieldOptimizationCapable() bool
	ReleaseResourceGroupCache()
}

// ResourceGroupSize is reported separately from MoveResolver because an
// overlay always answers 0 regardless of the base (spec.md §4.4 "Group
// size: always reports 0 in the overlay").
type ResourceGroupSizeResolver interface {
	ResourceGroupSize(key types.StateKey) (uint64, error)
}
