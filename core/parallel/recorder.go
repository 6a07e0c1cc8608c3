package parallel

import (
	"sync"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// readSet is everything one task's execution observed, used to validate
// whether a speculative run's inputs are still correct once the true
// commit prefix is known (spec.md §4.5 "given the same (resolver, txn)
// inputs, the output is a deterministic function of the observed reads").
type readSet struct {
	mu           sync.Mutex
	stateKeys    map[types.StateKey]struct{}
	delayedIDs   map[types.DelayedFieldID]struct{}
}

func newReadSet() *readSet {
	return &readSet{stateKeys: map[types.StateKey]struct{}{}, delayedIDs: map[types.DelayedFieldID]struct{}{}}
}

func (r *readSet) recordKey(k types.StateKey) {
	r.mu.Lock()
	r.stateKeys[k] = struct{}{}
	r.mu.Unlock()
}

func (r *readSet) recordDelayed(id types.DelayedFieldID) {
	r.mu.Lock()
	r.delayedIDs[id] = struct{}{}
	r.mu.Unlock()
}

// intersectsWrites reports whether this read set touched any key or
// delayed-field id in writtenKeys/writtenDelayed — the textbook Block-STM
// validation condition (spec.md §4.5 "when conflicts are detected the
// executor re-runs affected transactions").
func (r *readSet) intersectsWrites(writtenKeys map[types.StateKey]struct{}, writtenDelayed map[types.DelayedFieldID]struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.stateKeys {
		if _, ok := writtenKeys[k]; ok {
			return true
		}
	}
	for id := range r.delayedIDs {
		if _, ok := writtenDelayed[id]; ok {
			return true
		}
	}
	return false
}

// recordingResolver wraps a MoveResolver and logs every key/id a task reads
// through it, without altering the answers (spec.md §4.5's executor needs to
// know exactly what each speculative run depended on).
type recordingResolver struct {
	inner vm.MoveResolver
	reads *readSet
}

func newRecordingResolver(inner vm.MoveResolver) *recordingResolver {
	return &recordingResolver{inner: inner, reads: newReadSet()}
}

func (r *recordingResolver) GetModule(key types.StateKey) (*vm.StateValue, error) {
	r.reads.recordKey(key)
	return r.inner.GetModule(key)
}

func (r *recordingResolver) GetResource(key types.StateKey) (*vm.StateValue, error) {
	r.reads.recordKey(key)
	return r.inner.GetResource(key)
}

func (r *recordingResolver) GetResourceFromGroup(key types.StateKey, tag string, layout []byte) ([]byte, error) {
	r.reads.recordKey(key)
	return r.inner.GetResourceFromGroup(key, tag, layout)
}

func (r *recordingResolver) GetAggregatorV1Value(key types.StateKey) (uint64, error) {
	r.reads.recordKey(key)
	return r.inner.GetAggregatorV1Value(key)
}

func (r *recordingResolver) GetDelayedFieldValue(id types.DelayedFieldID) (uint64, error) {
	r.reads.recordDelayed(id)
	return r.inner.GetDelayedFieldValue(id)
}

func (r *recordingResolver) DelayedFieldTryAddDeltaOutcome(id types.DelayedFieldID, base types.DelayedApplyChange, maxValue uint64) (bool, error) {
	r.reads.recordDelayed(id)
	return r.inner.DelayedFieldTryAddDeltaOutcome(id, base, maxValue)
}

func (r *recordingResolver) IsDelayedFieldOptimizationCapable() bool {
	return r.inner.IsDelayedFieldOptimizationCapable()
}

func (r *recordingResolver) ReleaseResourceGroupCache() {
	r.inner.ReleaseResourceGroupCache()
}

// writtenKeysOf collects every StateKey and DelayedFieldID a finished change
// set wrote to, for validating a later task's read set against it.
func writtenKeysOf(cs *types.ChangeSet) (map[types.StateKey]struct{}, map[types.DelayedFieldID]struct{}) {
	keys := map[types.StateKey]struct{}{}
	if cs == nil {
		return keys, map[types.DelayedFieldID]struct{}{}
	}
	for k := range cs.ResourceWriteSet {
		keys[k] = struct{}{}
	}
	for k := range cs.ModuleWriteSet {
		keys[k] = struct{}{}
	}
	for k := range cs.AggregatorV1WriteSet {
		keys[k] = struct{}{}
	}
	for k := range cs.AggregatorV1DeltaSet {
		keys[k] = struct{}{}
	}
	for k := range cs.ResourceGroupWriteSet {
		keys[k] = struct{}{}
	}
	delayed := map[types.DelayedFieldID]struct{}{}
	for id := range cs.DelayedFieldChangeSet {
		delayed[id] = struct{}{}
	}
	return keys, delayed
}
