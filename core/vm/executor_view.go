package vm

import (
	"errors"

	"github.com/young-rocks/aptos-core/core/types"
)

// ErrSelfReferentialDelayedField guards the Current(self) case spec.md §4.4
// calls out explicitly: "recursively resolve the base identifier ...
// Current(base_id) reads this overlay (with a guard against base_id == id)".
var ErrSelfReferentialDelayedField = errors.New("delayed field apply chain references itself")

// ExecutorViewWithChangeSet overlays a prior ChangeSet on top of a base
// MoveResolver: reads consult the change set first, falling back to base
// (spec.md §4.4 "Overlay semantics"). It is itself a MoveResolver, so a
// Session can be opened directly against it.
type ExecutorViewWithChangeSet struct {
	base            MoveResolver
	baseGroupSize   ResourceGroupSizeResolver // optional, nil if base doesn't support it
	algebra         types.DelayedFieldAlgebra
	changeSet       *types.ChangeSet
}

func NewExecutorViewWithChangeSet(base MoveResolver, changeSet *types.ChangeSet, algebra types.DelayedFieldAlgebra) *ExecutorViewWithChangeSet {
	groupSizer, _ := base.(ResourceGroupSizeResolver)
	return &ExecutorViewWithChangeSet{base: base, baseGroupSize: groupSizer, algebra: algebra, changeSet: changeSet}
}

// ChangeSet exposes the overlay's own accumulated change set. Per spec.md
// §4.4's RespawnedSession lifetime contract, callers must not read this
// until the owning session has been finished or dropped.
func (v *ExecutorViewWithChangeSet) ChangeSet() *types.ChangeSet { return v.changeSet }

func (v *ExecutorViewWithChangeSet) GetModule(key types.StateKey) (*StateValue, error) {
	if op, ok := v.changeSet.ModuleWriteSet[key]; ok {
		return writeOpToStateValue(op), nil
	}
	return v.base.GetModule(key)
}

func (v *ExecutorViewWithChangeSet) GetResource(key types.StateKey) (*StateValue, error) {
	if op, ok := v.changeSet.ResourceWriteSet[key]; ok {
		return writeOpToStateValue(op), nil
	}
	return v.base.GetResource(key)
}

func (v *ExecutorViewWithChangeSet) GetResourceFromGroup(key types.StateKey, tag string, layout []byte) ([]byte, error) {
	if gw, ok := v.changeSet.ResourceGroupWriteSet[key]; ok {
		if inner, ok := gw.InnerOps[tag]; ok {
			if inner.Op.IsDeletion() {
				return nil, nil
			}
			return inner.Op.Bytes, nil
		}
	}
	return v.base.GetResourceFromGroup(key, tag, layout)
}

func (v *ExecutorViewWithChangeSet) GetAggregatorV1Value(key types.StateKey) (uint64, error) {
	if delta, ok := v.changeSet.AggregatorV1DeltaSet[key]; ok {
		// Ask the base to materialize the delta against its current value
		// (spec.md §4.4 "Aggregator v1").
		base, err := v.base.GetAggregatorV1Value(key)
		if err != nil {
			return 0, err
		}
		return applyAggregatorDelta(base, delta), nil
	}
	if op, ok := v.changeSet.AggregatorV1WriteSet[key]; ok {
		if op.IsDeletion() {
			return 0, nil
		}
		return bytesToUint64(op.Bytes), nil
	}
	return v.base.GetAggregatorV1Value(key)
}

func (v *ExecutorViewWithChangeSet) GetDelayedFieldValue(id types.DelayedFieldID) (uint64, error) {
	return v.resolveDelayedField(types.DelayedFieldIdentifier{Kind: types.DelayedFieldCurrent, Base: id}, id)
}

// resolveDelayedField implements spec.md §4.4's recursive Previous/Current
// resolution, guarding against a Current(self) cycle. An Apply change's
// delta is added to (or subtracted from, flooring at 0) the resolved base
// value; no max_value bound is applied here.
func (v *ExecutorViewWithChangeSet) resolveDelayedField(ident types.DelayedFieldIdentifier, startedAt types.DelayedFieldID) (uint64, error) {
	change, ok := v.changeSet.DelayedFieldChangeSet[ident.Base]
	if !ok {
		return v.base.GetDelayedFieldValue(ident.Base)
	}
	switch change.Kind {
	case types.DelayedFieldCreate:
		return change.CreatedValue.Lo, nil
	case types.DelayedFieldApply:
		apply := change.Apply
		var baseVal uint64
		var err error
		switch apply.Base.Kind {
		case types.DelayedFieldPrevious:
			baseVal, err = v.base.GetDelayedFieldValue(apply.Base.Base)
		case types.DelayedFieldCurrent:
			if apply.Base.Base == startedAt {
				return 0, ErrSelfReferentialDelayedField
			}
			baseVal, err = v.resolveDelayedField(apply.Base, startedAt)
		default:
			return 0, errors.New("unreachable delayed field change kind")
		}
		if err != nil {
			return 0, err
		}
		return applyAggregatorDelta(baseVal, *apply), nil
	}
	return 0, errors.New("unreachable delayed field change kind")
}

func (v *ExecutorViewWithChangeSet) DelayedFieldTryAddDeltaOutcome(id types.DelayedFieldID, base types.DelayedApplyChange, maxValue uint64) (bool, error) {
	if existing, ok := v.changeSet.DelayedFieldChangeSet[id]; ok && existing.Kind == types.DelayedFieldApply {
		// Hand the apply already in the change set and the new delta to the
		// algebra for the boundary outcome (spec.md §4.4 "Delayed-field
		// try-add-delta outcome"). Without an algebra, or without an existing
		// apply, the base is asked with the new delta alone.
		if v.algebra != nil {
			return v.algebra.TryAddDeltaOutcome(*existing.Apply, base, types.NewUint128FromU64(maxValue))
		}
	}
	return v.base.DelayedFieldTryAddDeltaOutcome(id, base, maxValue)
}

func (v *ExecutorViewWithChangeSet) IsDelayedFieldOptimizationCapable() bool {
	return v.base.IsDelayedFieldOptimizationCapable()
}

// ReleaseResourceGroupCache is unreachable on the overlay (spec.md §4.4
// "Release group cache: unreachable").
func (v *ExecutorViewWithChangeSet) ReleaseResourceGroupCache() {
	panic("vm: ReleaseResourceGroupCache must not be invoked on an ExecutorViewWithChangeSet overlay")
}

// ResourceGroupSize always reports 0 in the overlay — gas is irrelevant in
// the epilogue (spec.md §4.4 "Group size").
func (v *ExecutorViewWithChangeSet) ResourceGroupSize(key types.StateKey) (uint64, error) {
	return 0, nil
}

func writeOpToStateValue(op types.WriteOp) *StateValue {
	if op.IsDeletion() {
		return nil
	}
	return &StateValue{Bytes: op.Bytes, Metadata: op.Metadata}
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func applyAggregatorDelta(base uint64, delta types.DelayedApplyChange) uint64 {
	switch delta.Kind {
	case types.DelayedApplyAggregatorAdd:
		return base + delta.Delta.Lo
	case types.DelayedApplyAggregatorSub:
		if delta.Delta.Lo > base {
			return 0
		}
		return base - delta.Delta.Lo
	default:
		return base
	}
}
